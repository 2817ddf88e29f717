package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockInfo identifies the run currently holding the profile.
type LockInfo struct {
	PID       int       `json:"pid"`
	ChromePID int       `json:"chromePid,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	RunID     string    `json:"runId"`
	Platform  string    `json:"platform"`
}

// ProfileLock serializes access to the browser profile directory. Only one
// live automation process may hold the profile; a stale lock from a crashed
// run is cleanup debt, not evidence of legitimate concurrent use.
type ProfileLock struct {
	path string
	info *LockInfo
}

// NewProfileLock creates a lock manager for a profile directory. The lock
// file lives next to the profile, not inside it, so wiping the profile
// never wipes the lock state mid-run.
func NewProfileLock(profileDir string) *ProfileLock {
	return &ProfileLock{
		path: filepath.Clean(profileDir) + ".lock",
	}
}

// Acquire performs pre-flight cleanup and then takes the lock atomically.
// A stale lock (dead owner, or older than maxLockAge) is cleared: the
// recorded browser process is terminated and Chrome's singleton markers are
// removed from the profile. A live lock is an error.
func (pl *ProfileLock) Acquire(runID, platform string) error {
	if err := os.MkdirAll(filepath.Dir(pl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if existing, err := pl.readLock(); err == nil && existing != nil {
		if !isLockStale(existing) {
			return fmt.Errorf("profile is in use by run %s (PID %d, started %s)",
				existing.RunID, existing.PID, existing.StartedAt.Format(time.RFC3339))
		}
		reapStaleRun(existing)
		if err := os.Remove(pl.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	} else if fileExists(pl.path) {
		// Unreadable lock file: treat as stale debt.
		os.Remove(pl.path)
	}

	pl.info = &LockInfo{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		RunID:     runID,
		Platform:  platform,
	}

	data, err := json.MarshalIndent(pl.info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	data = append(data, '\n')

	// O_CREATE|O_EXCL: fails if another process won the race.
	f, err := os.OpenFile(pl.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("profile lock acquired by another process")
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(pl.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	return nil
}

// RecordChromePID notes the spawned browser's PID in the lock file so the
// next run can reap it if this one crashes.
func (pl *ProfileLock) RecordChromePID(pid int) error {
	if pl.info == nil {
		return nil
	}
	pl.info.ChromePID = pid
	data, err := json.MarshalIndent(pl.info, "", "  ")
	if err != nil {
		return err
	}
	return AtomicWriteFile(pl.path, append(data, '\n'))
}

// Release removes the lock if this process still owns it.
func (pl *ProfileLock) Release() error {
	if pl.info == nil {
		return nil
	}
	existing, err := pl.readLock()
	if err != nil || existing == nil {
		return nil
	}
	if existing.PID != os.Getpid() {
		return nil
	}
	return os.Remove(pl.path)
}

func (pl *ProfileLock) readLock() (*LockInfo, error) {
	data, err := os.ReadFile(pl.path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ReadLockStatus reads the current lock without acquiring it.
func ReadLockStatus(profileDir string) (*LockInfo, error) {
	pl := NewProfileLock(profileDir)
	if !fileExists(pl.path) {
		return nil, nil
	}
	return pl.readLock()
}

// maxLockAge guards against PID reuse: a lock this old is stale even if a
// process with the recorded PID is alive.
const maxLockAge = 24 * time.Hour

func isLockStale(info *LockInfo) bool {
	if !isProcessAlive(info.PID) {
		return true
	}
	return time.Since(info.StartedAt) > maxLockAge
}

// isProcessAlive checks a PID via signal 0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// reapStaleRun terminates the browser process left behind by a crashed run.
func reapStaleRun(info *LockInfo) {
	if info.ChromePID > 0 && isProcessAlive(info.ChromePID) {
		syscall.Kill(-info.ChromePID, syscall.SIGTERM)
		time.Sleep(500 * time.Millisecond)
		syscall.Kill(-info.ChromePID, syscall.SIGKILL)
	}
}

// chromeSingletonMarkers are the files Chrome leaves in a user-data-dir to
// claim exclusive use. After a crash they silently block every subsequent
// launch, so pre-flight removes them whenever the lock proves no live run
// exists.
var chromeSingletonMarkers = []string{
	"SingletonLock",
	"SingletonSocket",
	"SingletonCookie",
	"DevToolsActivePort",
}

// ClearStaleProfileMarkers removes Chrome's singleton markers from a
// profile directory. Returns the markers that were removed.
func ClearStaleProfileMarkers(profileDir string) []string {
	var removed []string
	for _, name := range chromeSingletonMarkers {
		p := filepath.Join(profileDir, name)
		// Singleton* are symlinks on Linux; Lstat sees them even when the
		// link target is gone.
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed = append(removed, name)
		}
	}
	return removed
}
