package kinds

import (
	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
)

// MaxSpawnDelay bounds the spawn delay accepted from a save.
const MaxSpawnDelay = 1 << 20

// TechnoExt is shared by every unit, infantry, aircraft and building.
type TechnoExt struct {
	extension.Base

	LastAttacker      handle.ID
	MissionTarget     handle.ID
	ElectricBoltCount int32
	IsCloakable       bool
	SpawnDelay        int32
}

func technoDescriptor() extension.Descriptor {
	return extension.Descriptor{
		Kind: Techno,
		New: func(owner handle.ID) (extension.Record, error) {
			t := &TechnoExt{}
			t.InitBase(owner)
			return t, nil
		},
		NewUninitialized: func(owner handle.ID) (extension.Record, error) {
			t := &TechnoExt{}
			t.InitUninitialized(owner)
			return t, nil
		},
	}
}

func (t *TechnoExt) Serialize(w *stream.Writer) error {
	w.Handle(t.LastAttacker)
	w.Handle(t.MissionTarget)
	w.Int32(t.ElectricBoltCount)
	w.Bool(t.IsCloakable)
	w.Int32(t.SpawnDelay)
	return w.Err()
}

func (t *TechnoExt) Deserialize(r *stream.Reader) error {
	t.LastAttacker = r.Handle()
	t.MissionTarget = r.Handle()
	t.ElectricBoltCount = r.Int32()
	t.IsCloakable = r.Bool()
	t.SpawnDelay = r.Int32()
	if t.ElectricBoltCount < 0 {
		r.Fail("negative electric bolt count %d", t.ElectricBoltCount)
	}
	if t.SpawnDelay < 0 || t.SpawnDelay > MaxSpawnDelay {
		r.Fail("spawn delay %d out of range", t.SpawnDelay)
	}
	return r.Err()
}

func (t *TechnoExt) Detach(target handle.ID, all bool) {
	self := all && target == t.Owner()
	if self || t.LastAttacker == target {
		t.LastAttacker = handle.ID{}
	}
	if self || t.MissionTarget == target {
		t.MissionTarget = handle.ID{}
	}
}

func (t *TechnoExt) ComputeChecksum(acc *checksum.Accumulator) {
	acc.Int32(t.ElectricBoltCount)
	acc.Bool(t.IsCloakable)
	acc.Int32(t.SpawnDelay)
}
