package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"extlayer/internal/app"
	"extlayer/internal/savestore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EXTLAYER_SAVE_DB", filepath.Join(dir, "saves.db"))
	t.Setenv("EXTLAYER_DUMP_DIR", filepath.Join(dir, "dumps"))
	t.Setenv("EXTLAYER_LOG_SINKS", "json")
	t.Setenv("EXTLAYER_LOG_JSON_PATH", filepath.Join(dir, "events.jsonl"))
	return dir
}

func TestSchemaCommandWritesSchema(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "schema", "dump.json")

	if _, err := execute(t, "schema", "--out", outPath); err != nil {
		t.Fatalf("schema: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if schema["title"] != "Extension Registry Dump" {
		t.Fatalf("expected dump schema title, got %v", schema["title"])
	}
}

func TestSchemaCommandRequiresOut(t *testing.T) {
	_, err := execute(t, "schema")
	if err == nil || !strings.Contains(err.Error(), `"out"`) {
		t.Fatalf("expected missing --out error, got %v", err)
	}
}

func TestRunCommandReportsMatchingChecksums(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "run", "--frames", "5", "--slot", "cli")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report app.ScenarioReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if report.Slot != "cli" || report.Frames != 5 {
		t.Fatalf("expected slot cli at frame 5, got %+v", report)
	}
	if report.SavedChecksum != report.LoadChecksum {
		t.Fatalf("expected checksums to match, got %016x and %016x", report.SavedChecksum, report.LoadChecksum)
	}

	out, err = execute(t, "saves")
	if err != nil {
		t.Fatalf("saves: %v", err)
	}
	var slots []savestore.Summary
	if err := json.Unmarshal([]byte(out), &slots); err != nil {
		t.Fatalf("decode slots %q: %v", out, err)
	}
	if len(slots) != 1 || slots[0].Name != "cli" {
		t.Fatalf("expected the cli slot, got %+v", slots)
	}

	if _, err := execute(t, "saves", "--delete", "cli"); err != nil {
		t.Fatalf("delete slot: %v", err)
	}
	out, err = execute(t, "saves")
	if err != nil {
		t.Fatalf("saves after delete: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected no slots, got %s", out)
	}
}

func TestRejectsInvalidEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("EXTLAYER_LOG_SINKS", "syslog")

	if _, err := execute(t, "saves"); err == nil {
		t.Fatalf("expected unknown sink to be rejected")
	}
}
