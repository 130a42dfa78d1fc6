package savestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"extlayer/logging"
	"extlayer/logging/persistence"
)

type eventLog struct {
	events []logging.Event
}

func (l *eventLog) Publish(_ context.Context, event logging.Event) {
	l.events = append(l.events, event)
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "saves.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	events := &eventLog{}
	store := openTestStore(t, WithPublisher(events))
	ctx := context.Background()

	want := Slot{
		Name:     "autosave",
		Session:  "0b6f3a52-4a55-4b1e-9a0d-3a6c2f9bb001",
		Frame:    420,
		Checksum: 0xfedcba9876543210,
		Objects:  17,
		Payload:  []byte{1, 2, 3, 4},
		SavedAt:  time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "autosave")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Session != want.Session || got.Frame != want.Frame || got.Checksum != want.Checksum || got.Objects != want.Objects {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if string(got.Payload) != string(want.Payload) {
		t.Fatalf("expected payload %v, got %v", want.Payload, got.Payload)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Fatalf("expected saved at %s, got %s", want.SavedAt, got.SavedAt)
	}
	if len(events.events) != 1 || events.events[0].Type != persistence.EventSlotStored {
		t.Fatalf("expected one slot stored event, got %v", events.events)
	}
}

func TestPutReplacesSlot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, Slot{Name: "quick", Payload: []byte{1}, Objects: 1}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.Put(ctx, Slot{Name: "quick", Payload: []byte{2, 2}, Objects: 2}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := store.Get(ctx, "quick")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Objects != 2 || len(got.Payload) != 2 {
		t.Fatalf("expected replaced slot, got %+v", got)
	}
	slots, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected a single slot, got %d", len(slots))
	}
}

func TestPutValidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	cases := []Slot{
		{Name: "", Payload: []byte{1}},
		{Name: "empty"},
		{Name: "negative", Payload: []byte{1}, Objects: -1},
	}
	for _, slot := range cases {
		if err := store.Put(ctx, slot); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("expected invalid slot for %+v, got %v", slot, err)
		}
	}
}

func TestListNewestFirst(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := openTestStore(t, WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	ctx := context.Background()
	for _, name := range []string{"first", "second", "third"} {
		if err := store.Put(ctx, Slot{Name: name, Payload: []byte(name), Checksum: 0xabc}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	slots, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 3 || slots[0].Name != "third" || slots[2].Name != "first" {
		t.Fatalf("expected newest first, got %+v", slots)
	}
	if slots[0].Checksum != "0000000000000abc" || slots[0].Bytes != len("third") {
		t.Fatalf("unexpected summary %+v", slots[0])
	}
}

func TestDelete(t *testing.T) {
	events := &eventLog{}
	store := openTestStore(t, WithPublisher(events))
	ctx := context.Background()
	if err := store.Put(ctx, Slot{Name: "doomed", Payload: []byte{9}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "doomed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "doomed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if events.events[len(events.events)-1].Type != persistence.EventSlotDeleted {
		t.Fatalf("expected slot deleted event")
	}
}

func TestReopenKeepsSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put(context.Background(), Slot{Name: "keep", Payload: []byte{7}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), "keep"); err != nil {
		t.Fatalf("expected slot to survive reopen, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.List(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
