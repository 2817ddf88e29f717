package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunTimedOut RunStatus = "timed_out"
)

// RunContext owns the identity and artifact directory of a single run.
// Every forensic file a run produces lives under DebugDir.
type RunContext struct {
	RunID     string
	DebugDir  string
	StartedAt time.Time
	Status    RunStatus

	logFile *os.File
}

// NewRunID generates a run identifier from the platform, a timestamp and a
// short random suffix. The suffix keeps concurrent manual invocations from
// colliding on the same second.
func NewRunID(platform string) string {
	ts := time.Now().Format("20060102_150405")
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("%s_%s_%s", platform, ts, suffix)
}

// NewRunContext allocates the artifact directory for a run, generating a
// run ID when none is supplied, and opens run.log. The sanitized run
// configuration is written to env.json immediately so forensics exist even
// if the run dies during startup.
func NewRunContext(cfg *Config) (*RunContext, error) {
	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID(cfg.Platform)
	}

	debugDir := cfg.DebugDir
	if debugDir == "" {
		debugDir = filepath.Join(cfg.RunsDir, runID)
	}
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	rc := &RunContext{
		RunID:     runID,
		DebugDir:  debugDir,
		StartedAt: time.Now(),
		Status:    RunRunning,
	}

	logPath := filepath.Join(debugDir, "run.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run.log: %w", err)
	}
	rc.logFile = f

	if err := rc.writeEnv(cfg); err != nil {
		return nil, err
	}

	return rc, nil
}

// envInfo is the sanitized run configuration written to env.json. Raw
// secrets never belong here.
type envInfo struct {
	RunID      string `json:"run_id"`
	Platform   string `json:"platform"`
	Headless   bool   `json:"headless"`
	ProfileDir string `json:"profile_dir"`
	AssetBase  string `json:"asset_basename"`
	DebugPort  int    `json:"debug_port"`
}

func (rc *RunContext) writeEnv(cfg *Config) error {
	env := envInfo{
		RunID:      rc.RunID,
		Platform:   cfg.Platform,
		Headless:   cfg.Headless,
		ProfileDir: cfg.ProfileDir,
		AssetBase:  filepath.Base(cfg.Asset),
		DebugPort:  cfg.DebugPort,
	}
	if err := AtomicWriteJSON(filepath.Join(rc.DebugDir, "env.json"), env); err != nil {
		return fmt.Errorf("failed to write env.json: %w", err)
	}
	return nil
}

// StepsPath returns the path to this run's steps.jsonl.
func (rc *RunContext) StepsPath() string {
	return filepath.Join(rc.DebugDir, "steps.jsonl")
}

// SummaryPath returns the path to this run's summary.json.
func (rc *RunContext) SummaryPath() string {
	return filepath.Join(rc.DebugDir, "summary.json")
}

// Printf writes a timestamped line to stdout and mirrors it into run.log.
// Logging failures are swallowed: losing a console line must not abort the
// run.
func (rc *RunContext) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05"), msg)
	fmt.Print(line)
	if rc.logFile != nil {
		io.WriteString(rc.logFile, line)
		rc.logFile.Sync()
	}
}

// LogWriter returns the run.log file for redirecting subprocess output.
func (rc *RunContext) LogWriter() io.Writer {
	if rc.logFile == nil {
		return io.Discard
	}
	return rc.logFile
}

// Close flushes and closes run.log.
func (rc *RunContext) Close() error {
	if rc.logFile == nil {
		return nil
	}
	rc.logFile.Sync()
	err := rc.logFile.Close()
	rc.logFile = nil
	return err
}

// RuntimeSecs returns the wall-clock runtime of the run so far.
func (rc *RunContext) RuntimeSecs() float64 {
	return time.Since(rc.StartedAt).Seconds()
}
