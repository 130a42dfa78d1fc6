package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"extlayer/internal/config"
	"extlayer/internal/hostsim"
	"extlayer/internal/savestore"
	"extlayer/internal/telemetry"
)

type fatalLog struct {
	mu   sync.Mutex
	errs []error
}

func (f *fatalLog) HandleFatal(_ context.Context, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fatalLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Seed:           "app-test",
		DumpDir:        filepath.Join(dir, "dumps"),
		LogSinks:       []string{config.SinkJSON},
		LogJSONPath:    filepath.Join(dir, "events.jsonl"),
		LogMinSeverity: "debug",
		SaveDB:         filepath.Join(dir, "saves.db"),
		DiagAddr:       "127.0.0.1:0",
		FrameInterval:  5 * time.Millisecond,
	}
}

func startRuntime(t *testing.T, cfg config.Config) (*Runtime, *fatalLog) {
	t.Helper()
	fatal := &fatalLog{}
	rt, err := Start(context.Background(), cfg, Options{
		Logger:  telemetry.LoggerFunc(func(string, ...any) {}),
		Console: io.Discard,
		Fatal:   fatal,
	})
	if err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt, fatal
}

func TestRunScenarioRoundTripsThroughSlot(t *testing.T) {
	rt, fatal := startRuntime(t, testConfig(t))
	ctx := context.Background()

	report, err := RunScenario(ctx, rt, ScenarioOptions{Frames: 30, Slot: "skirmish"})
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	expectedObjects := 0
	for _, n := range DefaultPopulation() {
		expectedObjects += n
	}
	if report.Objects != expectedObjects {
		t.Fatalf("expected %d objects, got %d", expectedObjects, report.Objects)
	}
	if report.Frames != 30 {
		t.Fatalf("expected frame 30, got %d", report.Frames)
	}
	if report.SavedChecksum != report.LoadChecksum {
		t.Fatalf("expected checksum to survive reload, got %016x and %016x", report.SavedChecksum, report.LoadChecksum)
	}
	if rt.World.Len() != expectedObjects {
		t.Fatalf("expected loaded world to hold %d objects, got %d", expectedObjects, rt.World.Len())
	}
	if rt.World.Frame() != 30 {
		t.Fatalf("expected loaded frame 30, got %d", rt.World.Frame())
	}
	if fatal.count() != 0 {
		t.Fatalf("expected no fatal errors, got %d", fatal.count())
	}

	slot, err := rt.Saves.Get(ctx, "skirmish")
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.Checksum != report.SavedChecksum {
		t.Fatalf("expected stored checksum %016x, got %016x", report.SavedChecksum, slot.Checksum)
	}
	if slot.Session != rt.World.Session().String() {
		t.Fatalf("expected stored session %s, got %s", rt.World.Session(), slot.Session)
	}
	if len(slot.Payload) != report.Bytes {
		t.Fatalf("expected %d payload bytes, got %d", report.Bytes, len(slot.Payload))
	}
}

func TestRunScenarioCustomPopulation(t *testing.T) {
	rt, _ := startRuntime(t, testConfig(t))

	report, err := RunScenario(context.Background(), rt, ScenarioOptions{
		Population: Population{hostsim.ClassBuilding: 5},
		Frames:     10,
	})
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if report.Slot != "scenario" {
		t.Fatalf("expected default slot name, got %q", report.Slot)
	}
	if report.Objects != 5 {
		t.Fatalf("expected 5 objects, got %d", report.Objects)
	}
}

func TestLoadSlotMissing(t *testing.T) {
	rt, fatal := startRuntime(t, testConfig(t))

	err := LoadSlot(context.Background(), rt, "nope")
	if !errors.Is(err, savestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fatal.count() != 0 {
		t.Fatalf("expected a missing slot not to be fatal, got %d", fatal.count())
	}
}

func TestLoadSlotCorruptPayloadIsFatal(t *testing.T) {
	rt, fatal := startRuntime(t, testConfig(t))
	ctx := context.Background()

	if err := rt.Saves.Put(ctx, savestore.Slot{Name: "broken", Session: "x", Payload: []byte("garbage")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := LoadSlot(ctx, rt, "broken")
	if !errors.Is(err, hostsim.ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
	if fatal.count() != 1 {
		t.Fatalf("expected one fatal error, got %d", fatal.count())
	}
	if rt.World.Len() != 0 {
		t.Fatalf("expected failed load to leave an empty world, got %d objects", rt.World.Len())
	}
}

func TestCloseFlushesJSONEvents(t *testing.T) {
	cfg := testConfig(t)
	rt, _ := startRuntime(t, cfg)

	if _, err := RunScenario(context.Background(), rt, ScenarioOptions{Frames: 3}); err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.LogJSONPath)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	for _, want := range []string{"persistence.save_written", "persistence.slot_stored", "persistence.load_completed"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Fatalf("expected event log to contain %s", want)
		}
	}
}

func TestServeStepsAutosavesAndStops(t *testing.T) {
	rt, _ := startRuntime(t, testConfig(t))
	if err := Populate(context.Background(), rt, DefaultPopulation()); err != nil {
		t.Fatalf("populate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, rt, ServeOptions{AutosaveEvery: 2, Ready: func(addr string) { ready <- addr }})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for listener")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("expected ok, got %q", body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := rt.Saves.Get(context.Background(), "autosave"); err == nil && rt.World.Frame() >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected world to tick and autosave, frame %d", rt.World.Frame())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for shutdown")
	}
}

func TestServeRejectsBusyAddress(t *testing.T) {
	cfg := testConfig(t)
	rt, _ := startRuntime(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, rt, ServeOptions{Ready: func(addr string) { ready <- addr }})
	}()
	addr := <-ready

	other, _ := startRuntime(t, testConfig(t))
	other.Config.DiagAddr = addr
	if err := Serve(context.Background(), other, ServeOptions{}); err == nil {
		t.Fatalf("expected second server on %s to fail", addr)
	}
	cancel()
	<-done
}
