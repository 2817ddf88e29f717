package main

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// StepStatus is the outcome of a single recorded step.
type StepStatus string

const (
	StepOK   StepStatus = "ok"
	StepWarn StepStatus = "warn"
	StepFail StepStatus = "fail"
)

// StepEvent is one line of steps.jsonl. Events are immutable once appended
// and their order is meaningful. On the wire the extra fields spread into
// the top-level object: {ts, step, status, url, ...extra}. Downstream
// tooling parses that exact layout.
type StepEvent struct {
	Timestamp time.Time
	Step      string
	Status    StepStatus
	URL       string
	Extra     map[string]any
}

// MarshalJSON flattens Extra into the top-level record. The fixed fields
// win over extra keys of the same name.
func (e StepEvent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Extra)+4)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["ts"] = e.Timestamp
	m["step"] = e.Step
	m["status"] = e.Status
	if e.URL != "" {
		m["url"] = e.URL
	}
	return json.Marshal(m)
}

// UnmarshalJSON reverses the flattening: every key beyond the fixed four
// lands in Extra.
func (e *StepEvent) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if s, ok := m["ts"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Timestamp = t
		}
	}
	if s, ok := m["step"].(string); ok {
		e.Step = s
	}
	if s, ok := m["status"].(string); ok {
		e.Status = StepStatus(s)
	}
	if s, ok := m["url"].(string); ok {
		e.URL = s
	}
	delete(m, "ts")
	delete(m, "step")
	delete(m, "status")
	delete(m, "url")
	if len(m) > 0 {
		e.Extra = m
	}
	return nil
}

// StepRecorder appends structured step events to steps.jsonl. Every append
// is flushed to durable storage before returning, and recording never
// returns an error: a logging failure must not abort the run.
type StepRecorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	lastStep string
	run      *RunContext
}

// NewStepRecorder opens the step log for a run.
func NewStepRecorder(run *RunContext) *StepRecorder {
	rec := &StepRecorder{run: run}
	f, err := os.OpenFile(run.StepsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		run.Printf("warning: cannot open step log: %v", err)
		return rec
	}
	rec.file = f
	rec.encoder = json.NewEncoder(f)
	return rec
}

// Record appends one step event. Failures are reported to the console but
// never returned.
func (r *StepRecorder) Record(step string, status StepStatus, extra map[string]any) {
	r.RecordURL(step, status, "", extra)
}

// RecordURL appends one step event with an associated page URL.
func (r *StepRecorder) RecordURL(step string, status StepStatus, url string, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastStep = step

	if r.encoder == nil {
		return
	}
	ev := StepEvent{
		Timestamp: time.Now(),
		Step:      step,
		Status:    status,
		URL:       url,
		Extra:     extra,
	}
	if err := r.encoder.Encode(ev); err != nil {
		r.run.Printf("warning: step log write failed: %v", err)
		return
	}
	r.file.Sync()
}

// LastStep returns the name of the most recently recorded step.
func (r *StepRecorder) LastStep() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStep
}

// Close closes the step log file.
func (r *StepRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}

// ReadSteps reads back all events from a steps.jsonl file, in append order.
// Unparseable lines are skipped.
func ReadSteps(path string) ([]StepEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []StepEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev StepEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
