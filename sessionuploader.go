package main

import (
	"context"
	"fmt"
)

// PublishFunc performs the platform-specific DOM interaction sequence
// against a live browser session and returns the published post ID. These
// steps live outside this module; platform packages register theirs here.
type PublishFunc func(ctx context.Context, bs *BrowserSession, req UploadRequest) (string, error)

// platformSteps maps platform names to their registered publish steps.
var platformSteps = map[string]PublishFunc{}

// RegisterPublishSteps installs the DOM interaction steps for a platform.
func RegisterPublishSteps(platform string, steps PublishFunc) {
	platformSteps[platform] = steps
}

// SessionUploader is the shared preamble around the platform-specific
// publish steps: it owns the browser lifecycle, gates on authentication,
// and dumps forensic snapshots at the checkpoints the original flows used
// (pre-upload, failure, success).
type SessionUploader struct {
	cfg   *Config
	steps PublishFunc
}

// NewSessionUploader builds the uploader for the configured platform.
func NewSessionUploader(cfg *Config) *SessionUploader {
	return &SessionUploader{
		cfg:   cfg,
		steps: platformSteps[cfg.Platform],
	}
}

// Upload implements Uploader.
func (u *SessionUploader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	bs, err := NewBrowserSession(u.cfg, req.Run.DebugDir)
	if err != nil {
		return UploadResult{}, err
	}
	defer bs.Close()

	if err := bs.Navigate(ctx, req.Platform.BaseURL); err != nil {
		req.Recorder.RecordURL("navigate", StepFail, req.Platform.BaseURL,
			map[string]any{"error": err.Error()})
		return UploadResult{Outcome: UploadFailure, Reason: "navigation failed: " + err.Error()}, nil
	}
	req.Recorder.RecordURL("navigate", StepOK, req.Platform.BaseURL, nil)

	// Auth gate: classify the landing page before any publish attempt.
	result := req.Dumper.DumpAndClassify(ctx, bs, req.Platform, "pre_upload")
	switch result.State {
	case StateAuthenticated:
		// proceed
	case StateLoginPage, StateCheckpoint, StateChallenge, StateCaptcha:
		req.Recorder.Record("auth_gate", StepWarn, map[string]any{
			"state":    string(result.State),
			"evidence": result.Evidence,
		})
		return UploadResult{Outcome: UploadNotAuthenticated}, nil
	default:
		// Inconclusive page; fall back to the cheap cookie probe.
		probe := SessionCookieProbe(u.cfg.ProfileDir, req.Platform)
		ok, perr := probe()
		if perr != nil || !ok {
			req.Recorder.Record("auth_gate", StepWarn, map[string]any{
				"state": string(StateUnknown), "cookie_probe": ok,
			})
			return UploadResult{Outcome: UploadNotAuthenticated}, nil
		}
	}
	req.Recorder.Record("auth_gate", StepOK, nil)

	if u.steps == nil {
		return UploadResult{
			Outcome: UploadFailure,
			Reason:  fmt.Sprintf("no publish steps registered for platform %q", req.Platform.Name),
		}, nil
	}

	publishedID, err := u.steps(ctx, bs, req)
	if err != nil {
		req.Dumper.Dump(ctx, bs, "failed")
		if errs := bs.ConsoleErrors(); len(errs) > 0 {
			req.Recorder.Record("console_errors", StepWarn, map[string]any{"errors": errs})
		}
		return UploadResult{Outcome: UploadFailure, Reason: err.Error()}, nil
	}

	req.Dumper.Dump(ctx, bs, "success")
	return UploadResult{Outcome: UploadSuccess, PublishedID: publishedID}, nil
}
