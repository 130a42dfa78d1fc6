package telemetry

import (
	"bytes"
	"log"
	"testing"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestCounters(t *testing.T) {
	var counters Counters
	counters.RecordCreated()
	counters.RecordCreated()
	counters.RecordDeferred()
	counters.RecordRestored()
	counters.RecordRemoved()
	counters.RecordCleared(3)
	counters.RecordCleared(-1)
	counters.RecordDetached(2)
	counters.RecordChecksum()
	counters.RecordFatal()

	got := counters.Snapshot()
	want := CountersSnapshot{Created: 2, Deferred: 1, Restored: 1, Removed: 1, Cleared: 3, Detached: 2, Checksums: 1, Fatals: 1}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	// Nil counters ignore every call.
	var nilCounters *Counters
	nilCounters.RecordCreated()
	nilCounters.RecordFatal()
	if snap := nilCounters.Snapshot(); snap != (CountersSnapshot{}) {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}
