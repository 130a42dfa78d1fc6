package extension

import "fmt"

// LoadPass brackets the host's load pass. While it is open, Construct
// defers record creation to the matching deserialize call.
//
// The flag is process-wide and gates every kind at once. The host runs one
// load at a time on its simulation thread, so a per-call scope is not needed.
type LoadPass struct {
	m     *Manager
	ended bool
}

// BeginLoad opens a load pass.
func (m *Manager) BeginLoad() (*LoadPass, error) {
	if !m.started {
		return nil, ErrNotStarted
	}
	if m.load != nil {
		return nil, ErrLoadInProgress
	}
	m.load = &LoadPass{m: m}
	m.deps.Logger.Printf("extension load pass started at frame %d", m.frame)
	return m.load, nil
}

// PerformingLoad reports whether a load pass is open.
func (m *Manager) PerformingLoad() bool {
	return m.load != nil
}

// Pending returns how many constructed objects are still waiting for their
// deserialize call, across every kind. Pairs deferred before the pass was
// opened count too.
func (p *LoadPass) Pending() int {
	if p == nil {
		return 0
	}
	return p.m.deferredCount()
}

func (m *Manager) deferredCount() int {
	n := 0
	for _, kind := range m.order {
		n += len(m.stores[kind].deferred)
	}
	return n
}

// End closes the pass. If any object was constructed but never deserialized
// it returns ErrDeferredUnresolved: those objects would otherwise live with no
// record while the rest of the system assumes one exists. The caller treats
// that as a failed load. The unresolved pairs are dropped either way.
func (p *LoadPass) End() error {
	if p == nil || p.ended {
		return nil
	}
	p.ended = true
	m := p.m
	if m.load == p {
		m.load = nil
	}
	unresolved := m.deferredCount()
	if unresolved == 0 {
		m.deps.Logger.Printf("extension load pass finished")
		return nil
	}
	for _, kind := range m.order {
		clear(m.stores[kind].deferred)
	}
	return fmt.Errorf("%w: %d pending", ErrDeferredUnresolved, unresolved)
}

func (p *LoadPass) abandon() {
	p.ended = true
	if p.m.load == p {
		p.m.load = nil
	}
}
