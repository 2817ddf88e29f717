package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// ArtifactKind distinguishes the forensic files a run produces.
type ArtifactKind string

const (
	ArtifactPageSnapshot ArtifactKind = "page-snapshot"
	ArtifactScreenshot   ArtifactKind = "screenshot"
	ArtifactProcessLog   ArtifactKind = "process-log"
)

// Artifact describes one write-once forensic file.
type Artifact struct {
	Tag       string       `json:"tag"`
	Timestamp time.Time    `json:"ts"`
	Kind      ArtifactKind `json:"kind"`
	Path      string       `json:"path"`
}

// PageCapturer supplies the current page state of a live browser session.
// The chromedp-backed implementation lives in browser.go; tests inject
// fakes.
type PageCapturer interface {
	CapturePage(ctx context.Context) (html string, screenshot []byte, url string, err error)
}

// ArtifactDumper writes durable page snapshots into a run's artifact
// directory. Dumping is best-effort: a failed capture is recorded as a warn
// step but never fails the caller.
type ArtifactDumper struct {
	mu      sync.Mutex
	run     *RunContext
	rec     *StepRecorder
	counter int
}

// NewArtifactDumper creates a dumper bound to a run and its step log.
func NewArtifactDumper(run *RunContext, rec *StepRecorder) *ArtifactDumper {
	return &ArtifactDumper{run: run, rec: rec}
}

// Dump captures the current page content and a screenshot, writing both
// under a filename unique per (tag, timestamp, counter). Returns the
// artifacts written; an empty slice means the capture failed.
func (d *ArtifactDumper) Dump(ctx context.Context, page PageCapturer, tag string) []Artifact {
	d.mu.Lock()
	d.counter++
	n := d.counter
	d.mu.Unlock()

	now := time.Now()
	stamp := fmt.Sprintf("%s_%03d", now.Format("20060102-150405"), n)

	html, shot, url, err := page.CapturePage(ctx)
	if err != nil {
		d.rec.Record("dump_"+tag, StepWarn, map[string]any{"error": err.Error()})
		return nil
	}

	var artifacts []Artifact

	htmlPath := filepath.Join(d.run.DebugDir, fmt.Sprintf("debug_%s_%s.html", tag, stamp))
	if err := AtomicWriteFile(htmlPath, []byte(html)); err != nil {
		d.rec.Record("dump_"+tag, StepWarn, map[string]any{"error": err.Error()})
	} else {
		artifacts = append(artifacts, Artifact{Tag: tag, Timestamp: now, Kind: ArtifactPageSnapshot, Path: htmlPath})
	}

	if len(shot) > 0 {
		pngPath := filepath.Join(d.run.DebugDir, fmt.Sprintf("debug_%s_%s.png", tag, stamp))
		if err := AtomicWriteFile(pngPath, shot); err != nil {
			d.rec.Record("dump_"+tag, StepWarn, map[string]any{"error": err.Error()})
		} else {
			artifacts = append(artifacts, Artifact{Tag: tag, Timestamp: now, Kind: ArtifactScreenshot, Path: pngPath})
		}
	}

	d.rec.RecordURL("dump_"+tag, StepOK, url, map[string]any{"files": len(artifacts)})
	return artifacts
}

// DumpAndClassify captures the page, writes the snapshot artifacts and runs
// the classifier on the captured content. On capture failure the
// classification is UNKNOWN.
func (d *ArtifactDumper) DumpAndClassify(ctx context.Context, page PageCapturer, p *Platform, tag string) ClassificationResult {
	html, shot, url, err := page.CapturePage(ctx)
	if err != nil {
		d.rec.Record("dump_"+tag, StepWarn, map[string]any{"error": err.Error()})
		return ClassificationResult{State: StateUnknown}
	}

	d.mu.Lock()
	d.counter++
	n := d.counter
	d.mu.Unlock()
	stamp := fmt.Sprintf("%s_%03d", time.Now().Format("20060102-150405"), n)

	htmlPath := filepath.Join(d.run.DebugDir, fmt.Sprintf("debug_%s_%s.html", tag, stamp))
	if werr := AtomicWriteFile(htmlPath, []byte(html)); werr != nil {
		d.run.Printf("warning: failed to write %s: %v", htmlPath, werr)
	}
	if len(shot) > 0 {
		pngPath := filepath.Join(d.run.DebugDir, fmt.Sprintf("debug_%s_%s.png", tag, stamp))
		if werr := AtomicWriteFile(pngPath, shot); werr != nil {
			d.run.Printf("warning: failed to write %s: %v", pngPath, werr)
		}
	}

	result := Classify(p, html, url)
	d.rec.RecordURL("dump_"+tag, StepOK, url, map[string]any{
		"state":    string(result.State),
		"evidence": result.Evidence,
	})
	return result
}
