package sinks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"extlayer/logging"
	"extlayer/logging/persistence"
	"extlayer/logging/sinks"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newRouter(t *testing.T, min logging.Severity, named ...logging.NamedSink) *logging.Router {
	t.Helper()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = min
	cfg.Fields = map[string]any{"service": "test"}
	router, err := logging.NewRouter(logging.ClockFunc(func() time.Time { return fixedTime }), cfg, named)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func TestRouterDeliversToMemorySink(t *testing.T) {
	memory := sinks.NewMemorySink()
	router := newRouter(t, logging.SeverityInfo, logging.NamedSink{Name: "memory", Sink: memory})

	ctx := context.Background()
	persistence.SlotStored(ctx, router, persistence.World("s1"), persistence.SlotPayload{Slot: "a", Session: "s1", Bytes: 10}, nil)
	router.Publish(ctx, logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected debug event to be filtered, got %d events", len(events))
	}
	event := events[0]
	if event.Type != persistence.EventSlotStored {
		t.Fatalf("expected %s, got %s", persistence.EventSlotStored, event.Type)
	}
	if !event.Time.Equal(fixedTime) {
		t.Fatalf("expected router clock to stamp the event, got %v", event.Time)
	}
	if event.Extra["service"] != "test" {
		t.Fatalf("expected router fields to be merged, got %v", event.Extra)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected one forwarded event, got %d", stats.EventsTotal)
	}

	memory.Reset()
	if len(memory.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}

func TestJSONSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewJSON(&buf, logging.JSONConfig{})

	err := sink.Write(logging.Event{
		Type:     persistence.EventSaveWritten,
		Frame:    7,
		Time:     fixedTime,
		Severity: logging.SeverityWarn,
		Actor:    persistence.World("s1"),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != string(persistence.EventSaveWritten) {
		t.Fatalf("expected type %s, got %v", persistence.EventSaveWritten, decoded["type"])
	}
	if decoded["severity"] != "warn" {
		t.Fatalf("expected severity name, got %v", decoded["severity"])
	}
	if decoded["frame"] != float64(7) {
		t.Fatalf("expected frame 7, got %v", decoded["frame"])
	}
}

func TestConsoleSinkFormatsActor(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewConsoleSink(&buf, logging.ConsoleConfig{Prefix: "[events] "})

	if err := sink.Write(logging.Event{Type: "test.event", Frame: 3, Actor: persistence.World("s1")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "[events] ") {
		t.Fatalf("expected configured prefix, got %q", out)
	}
	if !strings.Contains(out, "[test.event] frame=3 actor=world:s1") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestJSONSinkFlushesFullBatches(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewJSON(&buf, logging.JSONConfig{MaxBatch: 2, FlushInterval: time.Hour})

	write := func(frame uint64) {
		t.Helper()
		if err := sink.Write(logging.Event{Type: "test.event", Frame: frame, Time: fixedTime}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(1)
	if buf.Len() != 0 {
		t.Fatalf("expected first event to stay buffered, got %q", buf.String())
	}
	write(2)
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected a full batch to flush two lines, got %d", lines)
	}
	write(3)
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected third event to wait for the next batch, got %d lines", lines)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected close to flush the remainder, got %d lines", lines)
	}
}
