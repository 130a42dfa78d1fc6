package extension

import (
	"fmt"

	"extlayer/internal/checksum"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
	"extlayer/logging/lifecycle"
)

// Association is the state of one (host object, kind) pair.
type Association int

const (
	// Unassociated: no record exists and none is pending.
	Unassociated Association = iota
	// Deferred: the object was constructed during a load pass and its record
	// will be created by the matching deserialize call.
	Deferred
	// Associated: a record is registered.
	Associated
)

func (a Association) String() string {
	switch a {
	case Unassociated:
		return "unassociated"
	case Deferred:
		return "deferred"
	case Associated:
		return "associated"
	default:
		return fmt.Sprintf("association(%d)", int(a))
	}
}

// State reports where the pair (id, kind) is in its lifecycle.
func (m *Manager) State(id handle.ID, kind Kind) Association {
	st, ok := m.stores[kind]
	if !ok {
		return Unassociated
	}
	if _, ok := st.records.Find(id); ok {
		return Associated
	}
	if _, ok := st.deferred[id]; ok {
		return Deferred
	}
	return Unassociated
}

// Construct is OnHostObjectConstructed with the load flag taken from the
// current load pass.
func (m *Manager) Construct(id handle.ID, kind Kind) error {
	return m.OnHostObjectConstructed(id, kind, m.PerformingLoad())
}

// OnHostObjectConstructed runs at the host's construction point. On the
// normal path it creates the record. During a load the record is deferred to
// OnHostObjectDeserialize so no throwaway record is built.
//
// An invalid owner returns ErrInvalidOwner and creates nothing; the host is
// expected to let the object self-destruct.
func (m *Manager) OnHostObjectConstructed(id handle.ID, kind Kind, loadInProgress bool) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	if !m.validOwner(id) {
		return fmt.Errorf("%w: %s %s", ErrInvalidOwner, kind, id)
	}
	delete(st.retired, id)

	if loadInProgress {
		if _, ok := st.records.Find(id); ok {
			return nil
		}
		if _, ok := st.deferred[id]; ok {
			return nil
		}
		st.deferred[id] = struct{}{}
		m.deps.Counters.RecordDeferred()
		lifecycle.ExtensionDeferred(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.RecordPayload{Kind: string(kind)}, nil)
		return nil
	}

	_, created, err := m.create(st, id, false)
	if err != nil {
		return err
	}
	if created {
		m.deps.Counters.RecordCreated()
		lifecycle.ExtensionCreated(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.RecordPayload{Kind: string(kind)}, nil)
	}
	return nil
}

// OnHostObjectDeserialize creates the record through the no-init path and
// fills it from r. A malformed payload returns an error wrapping
// ErrMalformedStream; the record is left registered in a destructible state
// and the caller must abandon the load.
func (m *Manager) OnHostObjectDeserialize(id handle.ID, kind Kind, r *stream.Reader) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	if !m.validOwner(id) {
		return fmt.Errorf("%w: %s %s", ErrInvalidOwner, kind, id)
	}
	rec, created, err := m.create(st, id, true)
	if err != nil {
		return err
	}
	delete(st.deferred, id)
	if created {
		m.deps.Counters.RecordCreated()
	}

	derr := rec.Deserialize(r)
	if derr == nil {
		derr = r.Err()
	}
	if derr != nil {
		err := fmt.Errorf("extension: deserialize %s %s: %w", kind, id, derr)
		lifecycle.LoadFailed(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.FailurePayload{Kind: string(kind), Error: err.Error()}, nil)
		return err
	}
	if marker, ok := rec.(initializer); ok {
		marker.MarkInitialized()
	}
	m.deps.Counters.RecordRestored()
	lifecycle.ExtensionRestored(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.RecordPayload{Kind: string(kind)}, nil)
	return nil
}

// OnHostObjectSerialize writes the record's payload to w. The record must
// exist; a missing one returns ErrNotFound.
func (m *Manager) OnHostObjectSerialize(id handle.ID, kind Kind, w *stream.Writer) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	rec, ok := st.records.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	if err := rec.Serialize(w); err != nil {
		return fmt.Errorf("extension: serialize %s %s: %w", kind, id, err)
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("extension: serialize %s %s: %w", kind, id, err)
	}
	return nil
}

// OnHostObjectDestroyed removes and releases the record for id. Objects that
// never reached Associated are ignored. A second destroy of the same
// identity is a programmer error, reported only in strict mode.
func (m *Manager) OnHostObjectDestroyed(id handle.ID, kind Kind) {
	st, err := m.store(kind)
	if err != nil {
		m.deps.Logger.Printf("extension: destroy %s %s: %v", kind, id, err)
		return
	}
	delete(st.deferred, id)
	rec, ok := st.records.Remove(id)
	if !ok {
		if _, retired := st.retired[id]; retired {
			m.violation(fmt.Errorf("%w: %s %s", ErrDoubleRemove, kind, id))
		}
		return
	}
	rec.Release()
	if m.cfg.Strict {
		if len(st.retired) >= maxRetired {
			clear(st.retired)
		}
		st.retired[id] = struct{}{}
	}
	m.deps.Counters.RecordRemoved()
	lifecycle.ExtensionRemoved(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.RecordPayload{Kind: string(kind)}, nil)
}

// OnReferenceInvalidated tells every live record of every kind that target
// is going away from everyone's references. Records are not destroyed.
func (m *Manager) OnReferenceInvalidated(target handle.ID, all bool) {
	if !m.started {
		return
	}
	visited := 0
	for _, kind := range m.order {
		m.stores[kind].records.ForEach(func(_ handle.ID, rec Record) bool {
			rec.Detach(target, all)
			visited++
			return true
		})
	}
	m.deps.Counters.RecordDetached(visited)
	lifecycle.ReferenceInvalidated(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(target.String()), lifecycle.ReferencePayload{All: all, Visited: visited}, nil)
}

// OnWorldTeardown releases every record of kind. Pending deferred pairs are
// dropped as well. Calling it on an empty registry is fine.
func (m *Manager) OnWorldTeardown(kind Kind) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	records := st.records.ClearAll()
	for _, rec := range records {
		rec.Release()
	}
	deferred := len(st.deferred)
	clear(st.deferred)
	clear(st.retired)
	m.deps.Counters.RecordCleared(len(records))
	lifecycle.WorldTeardown(m.ctx, m.deps.Publisher, m.frame, lifecycle.TeardownPayload{Kind: string(kind), Released: len(records), Deferred: deferred}, nil)
	return nil
}

// TeardownAll runs OnWorldTeardown for every kind in registration order.
func (m *Manager) TeardownAll() {
	if !m.started {
		return
	}
	for _, kind := range m.order {
		_ = m.OnWorldTeardown(kind)
	}
}

// OnComputeChecksum feeds every record of kind into acc in insertion order.
func (m *Manager) OnComputeChecksum(kind Kind, acc *checksum.Accumulator) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	st.records.ForEach(func(_ handle.ID, rec Record) bool {
		rec.ComputeChecksum(acc)
		return true
	})
	m.deps.Counters.RecordChecksum()
	return nil
}

// ForEach visits the records of kind in insertion order. The visitor must
// not construct or destroy host objects.
func (m *Manager) ForEach(kind Kind, visit func(handle.ID, Record) bool) error {
	st, err := m.store(kind)
	if err != nil {
		return err
	}
	st.records.ForEach(visit)
	return nil
}

func publishFatal(m *Manager, kind Kind, id handle.ID, err error) {
	lifecycle.Fatal(m.ctx, m.deps.Publisher, m.frame, lifecycle.HostObject(id.String()), lifecycle.FailurePayload{Kind: string(kind), Error: err.Error()}, nil)
}
