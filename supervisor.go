package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// RunSummary is the terminal summary.json, written unconditionally on every
// exit path.
type RunSummary struct {
	RunID       string  `json:"run_id"`
	DebugDir    string  `json:"debug_dir"`
	RC          int     `json:"rc"`
	RuntimeSecs float64 `json:"runtime_secs"`
	LastStep    string  `json:"last_step"`
}

// loginRunner is the slice of InteractiveLoginController the supervisor
// depends on; tests substitute fakes.
type loginRunner interface {
	Start(profileDir string, debugPort int, loginURL string) (*InteractiveSession, error)
	WaitForLogin(session *InteractiveSession, check CheckFunc, timeout time.Duration) SessionState
	Stop(session *InteractiveSession)
}

// Supervisor drives one end-to-end publish run: pre-flight cleanup, ledger
// gate, uploader invocation, interactive-login hand-off, and terminal
// summary.
type Supervisor struct {
	cfg      *Config
	platform *Platform
	uploader Uploader

	// Probe is the authentication check used while waiting for a human.
	// Defaults to the session-cookie probe; injectable for tests.
	Probe CheckFunc

	// newLoginRunner builds the interactive session controller; injectable
	// for tests.
	newLoginRunner func(run *RunContext, rec *StepRecorder) loginRunner

	// openLedger is injectable so tests can supply a broken ledger.
	openLedger func(path string) (*UploadLedger, error)
}

// NewSupervisor wires a supervisor with production defaults. The config
// must already be validated.
func NewSupervisor(cfg *Config, uploader Uploader) (*Supervisor, error) {
	platform, err := LookupPlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:      cfg,
		platform: platform,
		uploader: uploader,
		Probe:    SessionCookieProbe(cfg.ProfileDir, platform),
		newLoginRunner: func(run *RunContext, rec *StepRecorder) loginRunner {
			return NewInteractiveLoginController(run, rec, cfg.ChromePath)
		},
		openLedger: OpenLedger,
	}
	return s, nil
}

// finalizer guarantees the terminal summary and resource release on every
// exit path, including a signal. Idempotent.
type finalizer struct {
	mu   sync.Mutex
	done bool

	run     *RunContext
	rec     *StepRecorder
	ledger  *UploadLedger
	lock    *ProfileLock
	stopFns []func()
}

// addStop registers a teardown hook (e.g. interactive session stop) that
// must fire even on a signal.
func (f *finalizer) addStop(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopFns = append(f.stopFns, fn)
}

// finalize writes summary.json and releases everything. Cleanup failures
// are logged but never override the primary exit code.
func (f *finalizer) finalize(rc int, status RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.done = true

	for _, fn := range f.stopFns {
		fn()
	}

	if f.run != nil {
		f.run.Status = status
		if f.rec != nil {
			f.rec.Record("run_end", stepStatusForRC(rc), map[string]any{
				"rc":     rc,
				"status": string(status),
			})
		}
		summary := RunSummary{
			RunID:       f.run.RunID,
			DebugDir:    f.run.DebugDir,
			RC:          rc,
			RuntimeSecs: f.run.RuntimeSecs(),
			LastStep:    "run_end",
		}
		if f.rec != nil {
			summary.LastStep = f.rec.LastStep()
		}
		if err := AtomicWriteJSON(f.run.SummaryPath(), summary); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write summary.json: %v\n", err)
		}
		f.run.Printf("Run %s finished: rc=%d status=%s (%.1fs)",
			f.run.RunID, rc, status, f.run.RuntimeSecs())
	}

	if f.rec != nil {
		f.rec.Close()
	}
	if f.run != nil {
		f.run.Close()
	}
	if f.ledger != nil {
		f.ledger.Close()
	}
	if f.lock != nil {
		f.lock.Release()
	}
}

func stepStatusForRC(rc int) StepStatus {
	if rc == 0 {
		return StepOK
	}
	return StepFail
}

// Run executes one publish run and returns its exit code. summary.json,
// steps.jsonl and run.log exist under the artifact directory after return,
// success or failure.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	cfg := s.cfg
	if cfg.RunID == "" {
		cfg.RunID = NewRunID(cfg.Platform)
	}

	fin := &finalizer{}

	// Pre-flight: take the profile lock, reaping any stale run, then clear
	// Chrome's singleton markers regardless. A leftover marker silently
	// blocks the next launch; this is steady state after a crash, not an
	// edge case.
	lock := NewProfileLock(cfg.ProfileDir)
	if err := lock.Acquire(cfg.RunID, cfg.Platform); err != nil {
		return 1, err
	}
	fin.lock = lock
	removed := ClearStaleProfileMarkers(cfg.ProfileDir)

	run, err := NewRunContext(cfg)
	if err != nil {
		fin.finalize(1, RunFailed)
		return 1, err
	}
	fin.run = run

	rec := NewStepRecorder(run)
	fin.rec = rec
	dumper := NewArtifactDumper(run, rec)

	// A hard kill must still leave a summary: finalize on SIGINT/SIGTERM.
	// The done channel releases the goroutine on the normal return path.
	sigChan := make(chan os.Signal, 1)
	sigDone := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigDone)
	}()
	go func() {
		select {
		case <-sigChan:
			run.Printf("Interrupted. Finalizing run...")
			fin.finalize(130, RunFailed)
			os.Exit(130)
		case <-sigDone:
		}
	}()

	run.Printf("Run %s starting (platform=%s asset=%s)", run.RunID, cfg.Platform, cfg.Asset)
	rec.Record("run_start", StepOK, map[string]any{
		"platform": cfg.Platform,
		"asset":    cfg.Asset,
	})
	if len(removed) > 0 {
		rec.Record("preflight_cleanup", StepOK, map[string]any{"removed_markers": removed})
	} else {
		rec.Record("preflight_cleanup", StepOK, nil)
	}

	ledger, err := s.openLedger(cfg.LedgerPath)
	if err != nil {
		rec.Record("ledger_open", StepFail, map[string]any{"error": err.Error()})
		fin.finalize(1, RunFailed)
		return 1, err
	}
	fin.ledger = ledger

	// Idempotency gate: the read happens before any publish attempt.
	assetID := cfg.Asset
	done, err := ledger.AlreadyDone(assetID, cfg.Platform)
	if err != nil {
		rec.Record("ledger_check", StepFail, map[string]any{"error": err.Error()})
		fin.finalize(1, RunFailed)
		return 1, err
	}
	if done {
		run.Printf("Asset already published to %s; skipping.", cfg.Platform)
		rec.Record("ledger_check", StepOK, map[string]any{"already_done": true})
		fin.finalize(0, RunSuccess)
		// Not a failure: rc stays 0 and the sentinel lets callers tell a
		// skip apart from a fresh publish.
		return 0, ErrAlreadyPublished
	}
	rec.Record("ledger_check", StepOK, map[string]any{"already_done": false})

	rc, status, runErr := s.publish(ctx, run, rec, dumper, ledger, fin)
	fin.finalize(rc, status)
	return rc, runErr
}

// publish invokes the uploader and handles the not-authenticated hand-off.
func (s *Supervisor) publish(ctx context.Context, run *RunContext, rec *StepRecorder, dumper *ArtifactDumper, ledger *UploadLedger, fin *finalizer) (int, RunStatus, error) {
	cfg := s.cfg
	req := UploadRequest{
		Asset:    cfg.Asset,
		Caption:  cfg.Caption,
		Platform: s.platform,
		Run:      run,
		Recorder: rec,
		Dumper:   dumper,
	}

	// Each attempt gets its own deadline. The interactive wait between
	// attempts can legitimately run longer than an upload is allowed to,
	// so the resumed attempt must not inherit a spent clock.
	attempt := func(n int) (UploadResult, error) {
		uploadCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.UploadTimeoutSecs)*time.Second)
		defer cancel()
		rec.Record("upload_attempt", StepOK, map[string]any{"attempt": n})
		res, err := s.uploader.Upload(uploadCtx, req)
		if err != nil {
			rec.Record("upload_attempt", StepFail, map[string]any{"error": err.Error()})
		}
		return res, err
	}

	res, err := attempt(1)
	if err != nil {
		return 1, RunFailed, err
	}

	if res.Outcome == UploadNotAuthenticated {
		rec.Record("not_authenticated", StepWarn, nil)
		if !cfg.InteractiveLogin {
			return 1, RunFailed, fmt.Errorf("run failed: %w (interactive login disabled)", ErrNotAuthenticated)
		}

		if err := s.interactiveLogin(run, rec, fin); err != nil {
			var timeoutErr *TimeoutExceeded
			if errors.As(err, &timeoutErr) {
				return 1, RunTimedOut, err
			}
			return 1, RunFailed, err
		}

		// Human completed login; resume the uploader without restarting
		// the whole pipeline.
		res, err = attempt(2)
		if err != nil {
			return 1, RunFailed, err
		}
		if res.Outcome == UploadNotAuthenticated {
			return 1, RunFailed, fmt.Errorf("run failed after interactive login: %w", ErrNotAuthenticated)
		}
	}

	switch res.Outcome {
	case UploadSuccess:
		rec.Record("upload_confirmed", StepOK, map[string]any{"published_id": res.PublishedID})
		// The ledger write happens only after the platform confirmed the
		// publish. A write failure is an operator warning, not a run
		// failure: the platform action completed.
		if err := ledger.MarkDone(cfg.Asset, cfg.Platform, res.PublishedID, time.Now()); err != nil {
			run.Printf("WARNING: publish succeeded but ledger write failed: %v", err)
			run.Printf("WARNING: rerunning this asset may cause a duplicate post.")
			rec.Record("ledger_mark", StepWarn, map[string]any{"error": err.Error()})
		} else {
			rec.Record("ledger_mark", StepOK, nil)
		}
		if cfg.ArchiveArtifacts {
			s.archive(run, rec)
		}
		return 0, RunSuccess, nil

	case UploadFailure:
		rec.Record("upload_failed", StepFail, map[string]any{"reason": res.Reason})
		return 1, RunFailed, fmt.Errorf("upload failed: %s", res.Reason)

	default:
		return 1, RunFailed, fmt.Errorf("uploader returned unexpected outcome %q", res.Outcome)
	}
}

// interactiveLogin spawns the HITL session, waits for the human, and tears
// the session down on every path before any failure is surfaced.
func (s *Supervisor) interactiveLogin(run *RunContext, rec *StepRecorder, fin *finalizer) error {
	cfg := s.cfg
	runner := s.newLoginRunner(run, rec)

	session, err := runner.Start(cfg.ProfileDir, cfg.DebugPort, s.platform.LoginURL)
	if err != nil {
		return err
	}
	// Note the browser PID in the lock: if this run dies here, the next
	// run's pre-flight reaps the orphaned process instead of just its
	// markers.
	if pid := session.Pid(); pid > 0 && fin.lock != nil {
		fin.lock.RecordChromePID(pid)
	}
	// Stop is idempotent: registered with the finalizer for the signal
	// path, deferred for the panic path, and called inline below so the
	// process is gone before any failure is surfaced.
	fin.addStop(func() { runner.Stop(session) })
	defer runner.Stop(session)

	timeout := time.Duration(cfg.InteractiveTimeoutSecs) * time.Second
	state := runner.WaitForLogin(session, s.Probe, timeout)
	runner.Stop(session)

	if state != SessionAuthenticated {
		return &TimeoutExceeded{
			Waited: time.Since(session.StartedAt),
			Limit:  timeout,
		}
	}
	return nil
}

// archive compresses the artifact directory next to itself. Best-effort.
func (s *Supervisor) archive(run *RunContext, rec *StepRecorder) {
	dst := run.DebugDir + ".tar.gz"
	if err := ArchiveDir(run.DebugDir, dst); err != nil {
		rec.Record("archive", StepWarn, map[string]any{"error": err.Error()})
		return
	}
	rec.Record("archive", StepOK, map[string]any{"path": dst})
}
