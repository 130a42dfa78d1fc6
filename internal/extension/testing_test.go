package extension

import (
	"context"
	"errors"
	"testing"

	"extlayer/internal/checksum"
	"extlayer/internal/handle"
	"extlayer/internal/stream"
	"extlayer/logging"
)

const kindProbe Kind = "probe"
const kindOther Kind = "other"

// probeRecord is a minimal kind: one payload value, one weak reference and a
// flag standing in for an owned resource.
type probeRecord struct {
	Base
	X        int32
	Target   handle.ID
	resource bool
	releases int
}

func newProbe(owner handle.ID) (Record, error) {
	rec := &probeRecord{X: 1, resource: true}
	rec.InitBase(owner)
	return rec, nil
}

func newProbeUninitialized(owner handle.ID) (Record, error) {
	rec := &probeRecord{}
	rec.InitUninitialized(owner)
	return rec, nil
}

func (p *probeRecord) Serialize(w *stream.Writer) error {
	w.Int32(p.X)
	w.Bool(p.resource)
	return w.Err()
}

func (p *probeRecord) Deserialize(r *stream.Reader) error {
	p.X = r.Int32()
	p.resource = r.Bool()
	return r.Err()
}

func (p *probeRecord) Detach(target handle.ID, all bool) {
	if p.Target == target || (all && target == p.Owner()) {
		p.Target = handle.ID{}
	}
}

func (p *probeRecord) ComputeChecksum(acc *checksum.Accumulator) {
	acc.Int32(p.X)
	acc.Bool(p.resource)
}

func (p *probeRecord) Release() {
	p.resource = false
	p.releases++
	p.Base.Release()
}

func probeDescriptor(kind Kind) Descriptor {
	return Descriptor{Kind: kind, New: newProbe, NewUninitialized: newProbeUninitialized}
}

type eventLog struct {
	events []logging.Event
}

func (l *eventLog) Publish(_ context.Context, event logging.Event) {
	l.events = append(l.events, event)
}

func (l *eventLog) count(typ logging.EventType) int {
	n := 0
	for _, event := range l.events {
		if event.Type == typ {
			n++
		}
	}
	return n
}

type fatalLog struct {
	errs []error
}

func (f *fatalLog) HandleFatal(_ context.Context, err error) {
	f.errs = append(f.errs, err)
}

func newTestManager(t *testing.T, cfg Config, deps Deps) *Manager {
	t.Helper()
	m := NewManager(cfg, deps)
	for _, kind := range []Kind{kindProbe, kindOther} {
		if err := m.Register(probeDescriptor(kind)); err != nil {
			t.Fatalf("register %s: %v", kind, err)
		}
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(m.Shutdown)
	return m
}

func owner(n uint32) handle.ID {
	return handle.ID{Index: n, Generation: 1}
}

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		recovered := recover()
		if recovered == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := recovered.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected panic wrapping %v, got %v", target, recovered)
		}
	}()
	fn()
}
