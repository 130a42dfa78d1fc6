package fatal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"extlayer/internal/telemetry"
)

func TestHandlerWritesDumpAndExits(t *testing.T) {
	dir := t.TempDir()
	var codes []int
	var logs []string
	h := NewHandler(Options{
		Logger:  telemetry.LoggerFunc(func(format string, args ...any) { logs = append(logs, format) }),
		DumpDir: dir,
		Exit:    func(code int) { codes = append(codes, code) },
		Clock:   func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})

	ctx := WithState(context.Background(), map[string]int{"records": 3})
	h.HandleFatal(ctx, errors.New("registry corrupted"))

	if len(codes) != 1 || codes[0] != ExitCode {
		t.Fatalf("expected one exit with code %d, got %v", ExitCode, codes)
	}
	if h.LastDump() == "" {
		t.Fatalf("expected dump path to be recorded")
	}
	raw, err := os.ReadFile(h.LastDump())
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	var dump struct {
		Error string         `json:"error"`
		Time  time.Time      `json:"time"`
		State map[string]int `json:"state"`
	}
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if dump.Error != "registry corrupted" {
		t.Fatalf("expected error message in dump, got %q", dump.Error)
	}
	if dump.State["records"] != 3 {
		t.Fatalf("expected attached state in dump, got %v", dump.State)
	}
	if !strings.HasPrefix(filepath.Base(h.LastDump()), "extlayer-20240301T120000-") {
		t.Fatalf("unexpected dump name %s", filepath.Base(h.LastDump()))
	}
	if len(logs) == 0 {
		t.Fatalf("expected fatal error to be logged")
	}
}

func TestHandlerWithoutDumpDir(t *testing.T) {
	exited := false
	h := NewHandler(Options{Exit: func(int) { exited = true }})
	h.HandleFatal(context.Background(), nil)
	if !exited {
		t.Fatalf("expected exit to run")
	}
	if h.LastDump() != "" {
		t.Fatalf("expected no dump, got %s", h.LastDump())
	}
}

// TestHandlerExitsProcess runs the default exit path in a subprocess because
// os.Exit cannot be intercepted in-process.
func TestHandlerExitsProcess(t *testing.T) {
	if dir := os.Getenv("TEST_FATAL_SUBPROCESS_DIR"); dir != "" {
		NewHandler(Options{DumpDir: dir}).HandleFatal(context.Background(), errors.New("boom"))
		return
	}

	dir := t.TempDir()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHandlerExitsProcess$")
	cmd.Env = append(os.Environ(), "TEST_FATAL_SUBPROCESS_DIR="+dir)
	err := cmd.Run()

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != ExitCode {
		t.Fatalf("expected exit code %d, got %d", ExitCode, exitErr.ExitCode())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dump dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one dump file, got %d", len(entries))
	}
}
