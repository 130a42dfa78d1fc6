package extension

import (
	"fmt"

	"extlayer/internal/handle"
)

// Find returns the record for (id, kind). A miss is not an error.
func (m *Manager) Find(id handle.ID, kind Kind) (Record, bool) {
	st, err := m.store(kind)
	if err != nil {
		return nil, false
	}
	return st.records.Find(id)
}

// TryFetch returns the record for (id, kind) as R. It is meant for
// speculative checks such as "does this object have lighting?".
func TryFetch[R Record](m *Manager, id handle.ID, kind Kind) (R, bool) {
	var zero R
	rec, ok := m.Find(id, kind)
	if !ok {
		return zero, false
	}
	typed, ok := rec.(R)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Fetch returns the record for (id, kind) as R for callers that rely on
// "constructed implies has extension". A missing or mistyped record is a
// broken invariant: it goes to the fatal handler, and Fetch panics if the
// handler returns.
func Fetch[R Record](m *Manager, id handle.ID, kind Kind) R {
	rec, ok := m.Find(id, kind)
	if !ok {
		err := fmt.Errorf("%w: fetch %s %s", ErrNotFound, kind, id)
		m.fail(err, kind, id)
		panic(err)
	}
	typed, ok := rec.(R)
	if !ok {
		err := fmt.Errorf("%w: %s %s holds %T", ErrKindMismatch, kind, id, rec)
		m.fail(err, kind, id)
		panic(err)
	}
	return typed
}

// With runs fn with the record for (id, kind) if one exists. Scoping the
// borrow to fn keeps callers from holding the record across a destruction
// point.
func With[R Record](m *Manager, id handle.ID, kind Kind, fn func(R)) bool {
	rec, ok := TryFetch[R](m, id, kind)
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Ref is a checked borrow of a record. Get verifies the registry still maps
// the identity to the same record before handing it out.
type Ref[R Record] struct {
	m    *Manager
	id   handle.ID
	kind Kind
	rec  R
}

// Borrow returns a checked reference to the record for (id, kind).
func Borrow[R Record](m *Manager, id handle.ID, kind Kind) (Ref[R], bool) {
	rec, ok := TryFetch[R](m, id, kind)
	if !ok {
		return Ref[R]{}, false
	}
	return Ref[R]{m: m, id: id, kind: kind, rec: rec}, true
}

// ID returns the owner identity the reference was taken for.
func (r Ref[R]) ID() handle.ID {
	return r.id
}

// Get returns the borrowed record, or ErrStaleReference when it has been
// removed or replaced since Borrow. Strict managers panic instead.
func (r Ref[R]) Get() (R, error) {
	var zero R
	if r.m == nil {
		return zero, fmt.Errorf("%w: empty reference", ErrStaleReference)
	}
	current, ok := r.m.Find(r.id, r.kind)
	if !ok || current != Record(r.rec) {
		err := fmt.Errorf("%w: %s %s", ErrStaleReference, r.kind, r.id)
		r.m.violation(err)
		return zero, err
	}
	return r.rec, nil
}
