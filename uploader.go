package main

import "context"

// UploadOutcome is the tri-state result of an uploader invocation.
type UploadOutcome string

const (
	// UploadSuccess means the platform confirmed the publish.
	UploadSuccess UploadOutcome = "success"
	// UploadNotAuthenticated means the profile has no live session. With
	// interactive login enabled the supervisor hands off to a human and
	// re-invokes the uploader.
	UploadNotAuthenticated UploadOutcome = "not_authenticated"
	// UploadFailure is any other terminal failure.
	UploadFailure UploadOutcome = "failure"
)

// UploadResult is what an uploader returns to the supervisor.
type UploadResult struct {
	Outcome     UploadOutcome
	PublishedID string // set on success, when the platform exposes one
	Reason      string // set on failure
}

// UploadRequest carries everything an uploader needs for one attempt.
type UploadRequest struct {
	Asset    string
	Caption  string
	Platform *Platform

	Run      *RunContext
	Recorder *StepRecorder
	Dumper   *ArtifactDumper
}

// Uploader performs the platform-specific publish sequence. The DOM
// interaction steps live outside this package; implementations emit step
// and artifact events at their checkpoints and report one of the three
// outcomes. An error return is reserved for infrastructure failures the
// uploader could not classify.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}
