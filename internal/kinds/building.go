package kinds

import (
	"fmt"

	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
)

// BuildingExt carries lighting and capture state for structures.
type BuildingExt struct {
	extension.Base

	lights *LightPool
	// light is the pool slot held while the light is visible. It is a
	// runtime resource and never saved.
	light uint32

	LightIntensity int32
	LightColor     RGB
	LightVisible   bool
	IsPowered      bool
	LastCapturedBy handle.ID
}

func buildingDescriptor(lights *LightPool) extension.Descriptor {
	return extension.Descriptor{
		Kind: Building,
		New: func(owner handle.ID) (extension.Record, error) {
			b := &BuildingExt{lights: lights, IsPowered: true}
			b.InitBase(owner)
			return b, nil
		},
		NewUninitialized: func(owner handle.ID) (extension.Record, error) {
			b := &BuildingExt{lights: lights}
			b.InitUninitialized(owner)
			return b, nil
		},
	}
}

// LightHandle returns the pool slot currently held, or zero.
func (b *BuildingExt) LightHandle() uint32 {
	return b.light
}

// SetLight turns the building light on with the given parameters.
func (b *BuildingExt) SetLight(intensity int32, color RGB) error {
	b.LightIntensity = intensity
	b.LightColor = color
	b.LightVisible = true
	if err := b.syncLight(); err != nil {
		b.LightVisible = false
		return err
	}
	return nil
}

// ClearLight turns the building light off and frees its slot.
func (b *BuildingExt) ClearLight() {
	b.LightVisible = false
	b.freeLight()
}

func (b *BuildingExt) syncLight() error {
	if !b.LightVisible || b.LightIntensity == 0 {
		b.freeLight()
		return nil
	}
	src := LightSource{Intensity: b.LightIntensity, Color: b.LightColor}
	if b.light != 0 {
		b.lights.Update(b.light, src)
		return nil
	}
	id, err := b.lights.Acquire(src)
	if err != nil {
		return err
	}
	b.light = id
	return nil
}

func (b *BuildingExt) freeLight() {
	if b.light != 0 {
		b.lights.Free(b.light)
		b.light = 0
	}
}

func (b *BuildingExt) Serialize(w *stream.Writer) error {
	w.Int32(b.LightIntensity)
	b.LightColor.write(w)
	w.Bool(b.LightVisible)
	w.Bool(b.IsPowered)
	w.Handle(b.LastCapturedBy)
	return w.Err()
}

func (b *BuildingExt) Deserialize(r *stream.Reader) error {
	b.LightIntensity = r.Int32()
	b.LightColor.read(r)
	b.LightVisible = r.Bool()
	b.IsPowered = r.Bool()
	b.LastCapturedBy = r.Handle()
	if err := r.Err(); err != nil {
		return err
	}
	if err := b.syncLight(); err != nil {
		return fmt.Errorf("restore light: %w", err)
	}
	return nil
}

func (b *BuildingExt) Detach(target handle.ID, all bool) {
	if b.LastCapturedBy == target || (all && target == b.Owner()) {
		b.LastCapturedBy = handle.ID{}
	}
}

func (b *BuildingExt) ComputeChecksum(acc *checksum.Accumulator) {
	acc.Int32(b.LightIntensity)
	b.LightColor.commit(acc)
	acc.Bool(b.LightVisible)
	acc.Bool(b.IsPowered)
}

func (b *BuildingExt) Release() {
	b.freeLight()
	b.Base.Release()
}
