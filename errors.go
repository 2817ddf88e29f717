package main

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotAuthenticated is the expected signal from an uploader when the
// profile has no live session. With interactive login enabled it triggers
// the HITL flow; otherwise it fails the run.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrAlreadyPublished is returned when the ledger short-circuits a run
// because the (asset, platform) pair was already published.
var ErrAlreadyPublished = errors.New("already published")

// LaunchFailure means the interactive browser process failed to start or
// never exposed its debugging endpoint. Fatal and fast; never conflated
// with the normal waiting-for-human path.
type LaunchFailure struct {
	Reason string
	Err    error
}

func (e *LaunchFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interactive session launch failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("interactive session launch failed: %s", e.Reason)
}

func (e *LaunchFailure) Unwrap() error { return e.Err }

// TimeoutExceeded means the interactive wait hit its ceiling. The spawned
// session is already torn down by the time this surfaces.
type TimeoutExceeded struct {
	Waited time.Duration
	Limit  time.Duration
}

func (e *TimeoutExceeded) Error() string {
	return fmt.Sprintf("interactive login not completed within %s (waited %s)",
		e.Limit.Round(time.Second), e.Waited.Round(time.Second))
}
