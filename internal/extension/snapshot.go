package extension

import (
	"fmt"

	"extlayer/internal/checksum"
	"extlayer/internal/handle"
)

// RecordSnapshot is the read-only view of one record used by debug dumps.
type RecordSnapshot struct {
	Owner       string `json:"owner"`
	OwnerKey    uint64 `json:"ownerKey"`
	Initialized bool   `json:"initialized"`
	Checksum    string `json:"checksum"`
}

// KindSnapshot lists the records of one kind in insertion order.
type KindSnapshot struct {
	Kind     Kind             `json:"kind"`
	Count    int              `json:"count"`
	Deferred int              `json:"deferred"`
	Checksum string           `json:"checksum"`
	Records  []RecordSnapshot `json:"records"`
}

// Snapshot is the state of every registry at one frame.
type Snapshot struct {
	Frame          uint64         `json:"frame"`
	Started        bool           `json:"started"`
	PerformingLoad bool           `json:"performingLoad"`
	Kinds          []KindSnapshot `json:"kinds"`
}

// Snapshot captures every registry. It only reads records, so it is safe to
// call from a fatal handler.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		Frame:          m.frame,
		Started:        m.started,
		PerformingLoad: m.load != nil,
		Kinds:          make([]KindSnapshot, 0, len(m.order)),
	}
	for _, kind := range m.order {
		st := m.stores[kind]
		kindAcc := checksum.New()
		ks := KindSnapshot{
			Kind:     kind,
			Count:    st.records.Len(),
			Deferred: len(st.deferred),
			Records:  make([]RecordSnapshot, 0, st.records.Len()),
		}
		st.records.ForEach(func(id handle.ID, rec Record) bool {
			acc := checksum.New()
			rec.ComputeChecksum(acc)
			rec.ComputeChecksum(kindAcc)
			ks.Records = append(ks.Records, RecordSnapshot{
				Owner:       id.String(),
				OwnerKey:    id.Uint64(),
				Initialized: rec.IsInitialized(),
				Checksum:    formatSum(acc.Sum()),
			})
			return true
		})
		ks.Checksum = formatSum(kindAcc.Sum())
		snap.Kinds = append(snap.Kinds, ks)
	}
	return snap
}

func formatSum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
