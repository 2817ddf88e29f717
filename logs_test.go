package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRunDir(t *testing.T, runsDir, runID string, summary *RunSummary, steps int) {
	t.Helper()
	dir := filepath.Join(runsDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create run dir: %v", err)
	}
	if summary != nil {
		if err := AtomicWriteJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
			t.Fatalf("failed to write summary: %v", err)
		}
	}
	if steps > 0 {
		run := &RunContext{RunID: runID, DebugDir: dir, StartedAt: time.Now()}
		rec := NewStepRecorder(run)
		for i := 0; i < steps; i++ {
			rec.Record("step", StepOK, nil)
		}
		rec.Close()
	}
}

func TestListRunDirs(t *testing.T) {
	runsDir := filepath.Join(t.TempDir(), "runs")

	writeRunDir(t, runsDir, "tiktok_a", &RunSummary{RunID: "tiktok_a", RC: 0}, 3)
	writeRunDir(t, runsDir, "tiktok_b", &RunSummary{RunID: "tiktok_b", RC: 1, LastStep: "run_end"}, 5)
	writeRunDir(t, runsDir, "tiktok_crashed", nil, 1) // died before the finalizer

	runs, err := ListRunDirs(runsDir)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}

	byID := map[string]RunListing{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	if byID["tiktok_a"].Summary == nil || byID["tiktok_a"].Summary.RC != 0 {
		t.Error("expected rc=0 summary for tiktok_a")
	}
	if byID["tiktok_a"].Steps != 3 {
		t.Errorf("expected 3 steps for tiktok_a, got %d", byID["tiktok_a"].Steps)
	}
	if byID["tiktok_crashed"].Summary != nil {
		t.Error("a run without summary.json must list as incomplete")
	}
	if byID["tiktok_crashed"].Steps != 1 {
		t.Errorf("step count should survive a missing summary, got %d", byID["tiktok_crashed"].Steps)
	}
}

func TestListRunDirs_MissingDirIsEmpty(t *testing.T) {
	runs, err := ListRunDirs(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runs != nil {
		t.Errorf("expected no runs, got %v", runs)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	if err := AtomicWriteFile(path, []byte("hello")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("unexpected content: %q", data)
	}
	if fileExists(path + ".tmp") {
		t.Error("temp file should not remain after rename")
	}

	// Overwrite replaces the previous content in full.
	if err := AtomicWriteFile(path, []byte("v2")); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "v2" {
		t.Errorf("unexpected content after overwrite: %q", data)
	}
}
