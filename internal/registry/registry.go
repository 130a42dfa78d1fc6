// Package registry stores one extension record per host identity for a single
// extension kind. Lookups go through an ID map; an ordered slice keeps
// insertion order for deterministic traversal.
package registry

import (
	"errors"
	"fmt"

	"extlayer/internal/handle"
)

var (
	// ErrAllocationFailure wraps any error returned by a record constructor.
	ErrAllocationFailure = errors.New("registry: record allocation failed")
	// ErrMutationDuringIteration is the panic value raised when a ForEach
	// visitor tries to insert or remove entries.
	ErrMutationDuringIteration = errors.New("registry: mutation during iteration")
)

// compactThreshold is the minimum number of tombstones before the ordered
// slice is rebuilt.
const compactThreshold = 16

type entry[R any] struct {
	id     handle.ID
	record R
	live   bool
}

// Registry maps host identities to owned records of type R. It is not safe
// for concurrent use.
type Registry[R any] struct {
	entries   []*entry[R]
	index     map[handle.ID]*entry[R]
	dead      int
	iterating int
}

// New returns an empty registry.
func New[R any]() *Registry[R] {
	return &Registry[R]{index: make(map[handle.ID]*entry[R])}
}

// Len returns the number of registered records.
func (r *Registry[R]) Len() int {
	return len(r.index)
}

// Find returns the record registered for id. A miss is a normal result.
func (r *Registry[R]) Find(id handle.ID) (R, bool) {
	if e, ok := r.index[id]; ok {
		return e.record, true
	}
	var zero R
	return zero, false
}

// FindOrCreate returns the record for id, calling create only when none is
// registered yet. The boolean reports whether a new record was inserted.
// Constructor errors are wrapped in ErrAllocationFailure and leave the
// registry unchanged.
func (r *Registry[R]) FindOrCreate(id handle.ID, create func() (R, error)) (R, bool, error) {
	if e, ok := r.index[id]; ok {
		return e.record, false, nil
	}
	r.guard("insert")

	record, err := create()
	if err != nil {
		var zero R
		return zero, false, fmt.Errorf("%w: %s: %w", ErrAllocationFailure, id, err)
	}
	e := &entry[R]{id: id, record: record, live: true}
	r.entries = append(r.entries, e)
	r.index[id] = e
	return record, true, nil
}

// Remove unregisters the record for id and hands it back so the caller can
// release it. Removing an unknown id is a no-op.
func (r *Registry[R]) Remove(id handle.ID) (R, bool) {
	e, ok := r.index[id]
	if !ok {
		var zero R
		return zero, false
	}
	r.guard("remove")

	delete(r.index, id)
	e.live = false
	record := e.record
	var zero R
	e.record = zero
	r.dead++
	r.maybeCompact()
	return record, true
}

// ClearAll empties the registry and returns every record it held in
// insertion order.
func (r *Registry[R]) ClearAll() []R {
	r.guard("clear")
	if len(r.index) == 0 {
		r.entries = r.entries[:0]
		r.dead = 0
		return nil
	}
	records := make([]R, 0, len(r.index))
	for _, e := range r.entries {
		if e.live {
			records = append(records, e.record)
		}
	}
	r.entries = nil
	r.index = make(map[handle.ID]*entry[R])
	r.dead = 0
	return records
}

// ForEach visits records in insertion order until visit returns false.
// The visitor must not mutate the registry; doing so panics with
// ErrMutationDuringIteration.
func (r *Registry[R]) ForEach(visit func(handle.ID, R) bool) {
	if visit == nil {
		return
	}
	r.iterating++
	defer func() { r.iterating-- }()
	for _, e := range r.entries {
		if !e.live {
			continue
		}
		if !visit(e.id, e.record) {
			return
		}
	}
}

// IDs returns the registered identities in insertion order.
func (r *Registry[R]) IDs() []handle.ID {
	if len(r.index) == 0 {
		return nil
	}
	ids := make([]handle.ID, 0, len(r.index))
	for _, e := range r.entries {
		if e.live {
			ids = append(ids, e.id)
		}
	}
	return ids
}

func (r *Registry[R]) guard(op string) {
	if r.iterating > 0 {
		panic(fmt.Errorf("%w: %s", ErrMutationDuringIteration, op))
	}
}

func (r *Registry[R]) maybeCompact() {
	if r.dead < compactThreshold || r.dead*2 < len(r.entries) {
		return
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.live {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.dead = 0
}
