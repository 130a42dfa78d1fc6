package kinds

import (
	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
)

// HouseExt tracks per-player statistics.
type HouseExt struct {
	extension.Base

	ProducedUnits  uint32
	IsObserver     bool
	PowerSurplus   int32
	LastAttackedBy handle.ID
}

func houseDescriptor() extension.Descriptor {
	return extension.Descriptor{
		Kind: House,
		New: func(owner handle.ID) (extension.Record, error) {
			h := &HouseExt{}
			h.InitBase(owner)
			return h, nil
		},
		NewUninitialized: func(owner handle.ID) (extension.Record, error) {
			h := &HouseExt{}
			h.InitUninitialized(owner)
			return h, nil
		},
	}
}

func (h *HouseExt) Serialize(w *stream.Writer) error {
	w.Uint32(h.ProducedUnits)
	w.Bool(h.IsObserver)
	w.Int32(h.PowerSurplus)
	w.Handle(h.LastAttackedBy)
	return w.Err()
}

func (h *HouseExt) Deserialize(r *stream.Reader) error {
	h.ProducedUnits = r.Uint32()
	h.IsObserver = r.Bool()
	h.PowerSurplus = r.Int32()
	h.LastAttackedBy = r.Handle()
	return r.Err()
}

func (h *HouseExt) Detach(target handle.ID, all bool) {
	if h.LastAttackedBy == target || (all && target == h.Owner()) {
		h.LastAttackedBy = handle.ID{}
	}
}

func (h *HouseExt) ComputeChecksum(acc *checksum.Accumulator) {
	acc.Uint32(h.ProducedUnits)
	acc.Bool(h.IsObserver)
	acc.Int32(h.PowerSurplus)
}
