package kinds

import (
	"math"

	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
)

const (
	// MaxBoltSegments bounds the segment count accepted from a save.
	MaxBoltSegments = 64
	maxWeaponName   = 64
)

// WeaponExt holds rules-level weapon data. It keeps no references to other
// objects, so Detach has nothing to clear.
type WeaponExt struct {
	extension.Base

	Name          string
	BoltColors    [3]RGB
	BoltSegments  uint8
	BoltDeviation float64
	IsSuicide     bool
}

func weaponDescriptor() extension.Descriptor {
	return extension.Descriptor{
		Kind: Weapon,
		New: func(owner handle.ID) (extension.Record, error) {
			wp := &WeaponExt{
				BoltColors:    [3]RGB{{R: 255, G: 255, B: 255}, {R: 82, G: 81, B: 255}, {R: 82, G: 81, B: 255}},
				BoltSegments:  8,
				BoltDeviation: 1.0,
			}
			wp.InitBase(owner)
			return wp, nil
		},
		NewUninitialized: func(owner handle.ID) (extension.Record, error) {
			wp := &WeaponExt{}
			wp.InitUninitialized(owner)
			return wp, nil
		},
	}
}

func (wp *WeaponExt) Serialize(w *stream.Writer) error {
	w.Text(wp.Name)
	for _, c := range wp.BoltColors {
		c.write(w)
	}
	w.Uint8(wp.BoltSegments)
	w.Float64(wp.BoltDeviation)
	w.Bool(wp.IsSuicide)
	return w.Err()
}

func (wp *WeaponExt) Deserialize(r *stream.Reader) error {
	wp.Name = r.Text()
	for i := range wp.BoltColors {
		wp.BoltColors[i].read(r)
	}
	wp.BoltSegments = r.Uint8()
	wp.BoltDeviation = r.Float64()
	wp.IsSuicide = r.Bool()
	if len(wp.Name) > maxWeaponName {
		r.Fail("weapon name length %d", len(wp.Name))
	}
	if wp.BoltSegments == 0 || wp.BoltSegments > MaxBoltSegments {
		r.Fail("bolt segments %d out of range", wp.BoltSegments)
	}
	if math.IsNaN(wp.BoltDeviation) || math.IsInf(wp.BoltDeviation, 0) {
		r.Fail("bolt deviation is not finite")
	}
	return r.Err()
}

func (wp *WeaponExt) Detach(handle.ID, bool) {}

func (wp *WeaponExt) ComputeChecksum(acc *checksum.Accumulator) {
	acc.Text(wp.Name)
	for _, c := range wp.BoltColors {
		c.commit(acc)
	}
	acc.Uint8(wp.BoltSegments)
	acc.Float64(wp.BoltDeviation)
	acc.Bool(wp.IsSuicide)
}
