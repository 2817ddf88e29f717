package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestRun builds a RunContext rooted in a temp dir.
func newTestRun(t *testing.T) (*RunContext, *Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		Platform:   "tiktok",
		ProfileDir: filepath.Join(dir, "profile"),
		RunsDir:    filepath.Join(dir, "runs"),
		Asset:      "clip.mp4",
	}
	run, err := NewRunContext(cfg)
	if err != nil {
		t.Fatalf("failed to create run context: %v", err)
	}
	t.Cleanup(func() { run.Close() })
	return run, cfg
}

func TestStepRecorder_AppendOrderPreserved(t *testing.T) {
	run, _ := newTestRun(t)
	rec := NewStepRecorder(run)

	rec.Record("first", StepOK, nil)
	rec.Record("second", StepWarn, map[string]any{"detail": "x"})
	rec.RecordURL("third", StepFail, "https://example.com/", nil)
	rec.Close()

	events, err := ReadSteps(run.StepsPath())
	if err != nil {
		t.Fatalf("failed to read steps: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"first", "second", "third"}
	for i, ev := range events {
		if ev.Step != want[i] {
			t.Errorf("event %d: expected step %q, got %q", i, want[i], ev.Step)
		}
	}
	if events[2].URL != "https://example.com/" {
		t.Errorf("expected URL preserved, got %q", events[2].URL)
	}
	if events[1].Extra["detail"] != "x" {
		t.Errorf("expected extra preserved, got %v", events[1].Extra)
	}
}

func TestStepRecorder_ExtraKeysFlattened(t *testing.T) {
	run, _ := newTestRun(t)
	rec := NewStepRecorder(run)
	rec.RecordURL("auth_gate", StepWarn, "https://www.tiktok.com/login",
		map[string]any{"result": "waiting", "remaining": "5s"})
	rec.Close()

	data, err := os.ReadFile(run.StepsPath())
	if err != nil {
		t.Fatalf("failed to read steps: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to parse step line: %v", err)
	}
	// Extra keys live at the top level of the record, next to the fixed
	// fields, not nested under a wrapper key.
	for _, key := range []string{"ts", "step", "status", "url", "result", "remaining"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected top-level key %q, got %v", key, raw)
		}
	}
	if _, ok := raw["extra"]; ok {
		t.Errorf("extra fields must not be nested: %v", raw)
	}
	if raw["step"] != "auth_gate" || raw["result"] != "waiting" {
		t.Errorf("unexpected record contents: %v", raw)
	}

	// Read-back reassembles the extra fields.
	events, err := ReadSteps(run.StepsPath())
	if err != nil {
		t.Fatalf("failed to read steps: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra["result"] != "waiting" || events[0].Extra["remaining"] != "5s" {
		t.Errorf("extra fields lost on read-back: %v", events[0].Extra)
	}
	if events[0].URL != "https://www.tiktok.com/login" {
		t.Errorf("url lost on read-back: %q", events[0].URL)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp lost on read-back")
	}
}

func TestStepRecorder_LastStep(t *testing.T) {
	run, _ := newTestRun(t)
	rec := NewStepRecorder(run)
	defer rec.Close()

	if rec.LastStep() != "" {
		t.Errorf("expected empty last step before recording")
	}
	rec.Record("alpha", StepOK, nil)
	rec.Record("omega", StepOK, nil)
	if rec.LastStep() != "omega" {
		t.Errorf("expected last step 'omega', got %q", rec.LastStep())
	}
}

func TestStepRecorder_NeverFailsAfterClose(t *testing.T) {
	run, _ := newTestRun(t)
	rec := NewStepRecorder(run)
	rec.Close()

	// Recording after close must not panic; the step name is still tracked.
	rec.Record("late", StepOK, nil)
	if rec.LastStep() != "late" {
		t.Errorf("expected last step tracked even without a file, got %q", rec.LastStep())
	}
}

func TestNewRunContext_ArtifactLayout(t *testing.T) {
	run, cfg := newTestRun(t)

	if run.RunID == "" {
		t.Fatal("expected generated run id")
	}
	if !fileExists(filepath.Join(run.DebugDir, "run.log")) {
		t.Error("run.log should exist after creation")
	}
	if !fileExists(filepath.Join(run.DebugDir, "env.json")) {
		t.Error("env.json should exist after creation")
	}

	data, err := os.ReadFile(filepath.Join(run.DebugDir, "env.json"))
	if err != nil {
		t.Fatalf("failed to read env.json: %v", err)
	}
	if string(data) == "" {
		t.Error("env.json should not be empty")
	}
	// env.json carries the asset basename, never the full path.
	if cfg.Asset != "clip.mp4" {
		t.Fatalf("test setup changed: %s", cfg.Asset)
	}
}

func TestNewRunContext_HonorsOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Platform:   "tiktok",
		ProfileDir: filepath.Join(dir, "profile"),
		RunsDir:    filepath.Join(dir, "runs"),
		RunID:      "custom_run_42",
		DebugDir:   filepath.Join(dir, "elsewhere"),
	}
	run, err := NewRunContext(cfg)
	if err != nil {
		t.Fatalf("failed to create run context: %v", err)
	}
	defer run.Close()

	if run.RunID != "custom_run_42" {
		t.Errorf("expected run id override honored, got %q", run.RunID)
	}
	if run.DebugDir != cfg.DebugDir {
		t.Errorf("expected debug dir override honored, got %q", run.DebugDir)
	}
}

func TestNewRunID_Format(t *testing.T) {
	id := NewRunID("tiktok")
	if !strings.HasPrefix(id, "tiktok_") {
		t.Errorf("expected platform prefix, got %q", id)
	}
	// platform + timestamp (date_time) + random suffix
	if parts := strings.Split(id, "_"); len(parts) != 4 {
		t.Errorf("expected 4 underscore-separated parts, got %q", id)
	}
	if other := NewRunID("instagram"); strings.HasPrefix(other, "tiktok_") {
		t.Errorf("platform not reflected in id: %q", other)
	}
}
