package main

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestProfileLock_AcquireRelease(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	pl := NewProfileLock(profile)
	if err := pl.Acquire("run_1", "tiktok"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if !fileExists(profile + ".lock") {
		t.Error("lock file should exist after acquire")
	}

	if err := pl.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if fileExists(profile + ".lock") {
		t.Error("lock file should not exist after release")
	}
}

func TestProfileLock_LiveLockRefused(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	pl1 := NewProfileLock(profile)
	if err := pl1.Acquire("run_1", "tiktok"); err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer pl1.Release()

	pl2 := NewProfileLock(profile)
	if err := pl2.Acquire("run_2", "tiktok"); err == nil {
		t.Error("expected error acquiring a held lock")
	}
}

func TestProfileLock_StaleLockCleared(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	// Simulate a crashed run: dead PID in the lock file, leftover Chrome
	// singleton markers in the profile.
	stale := LockInfo{
		PID:       999999, // beyond pid_max defaults; certainly dead
		StartedAt: time.Now().Add(-time.Hour),
		RunID:     "crashed_run",
		Platform:  "tiktok",
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(profile+".lock", data, 0644); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}
	os.Symlink("dead-target", filepath.Join(profile, "SingletonLock"))
	os.WriteFile(filepath.Join(profile, "DevToolsActivePort"), []byte("9222"), 0644)

	pl := NewProfileLock(profile)
	if err := pl.Acquire("run_new", "tiktok"); err != nil {
		t.Fatalf("stale lock should be cleared, got: %v", err)
	}
	defer pl.Release()

	removed := ClearStaleProfileMarkers(profile)
	if len(removed) != 2 {
		t.Errorf("expected 2 markers removed, got %v", removed)
	}
	if fileExists(filepath.Join(profile, "DevToolsActivePort")) {
		t.Error("DevToolsActivePort should be removed")
	}
	if _, err := os.Lstat(filepath.Join(profile, "SingletonLock")); err == nil {
		t.Error("SingletonLock symlink should be removed")
	}
}

func TestProfileLock_StaleChromeProcessReaped(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	// Stand-in for a browser orphaned by a crashed run: alive, own process
	// group, recorded in the stale lock.
	cmd := exec.Command("/bin/sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start test process: %v", err)
	}
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	stale := LockInfo{
		PID:       999999,
		ChromePID: cmd.Process.Pid,
		StartedAt: time.Now().Add(-time.Hour),
		RunID:     "crashed_run",
		Platform:  "tiktok",
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(profile+".lock", data, 0644); err != nil {
		t.Fatalf("failed to plant stale lock: %v", err)
	}

	pl := NewProfileLock(profile)
	if err := pl.Acquire("run_new", "tiktok"); err != nil {
		t.Fatalf("failed to acquire over stale lock: %v", err)
	}
	defer pl.Release()

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		t.Fatal("recorded browser process was not reaped during acquire")
	}
}

func TestProfileLock_UnreadableLockTreatedAsStale(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)
	os.WriteFile(profile+".lock", []byte("not json"), 0644)

	pl := NewProfileLock(profile)
	if err := pl.Acquire("run_1", "tiktok"); err != nil {
		t.Fatalf("unreadable lock should be cleared, got: %v", err)
	}
	defer pl.Release()
}

func TestReadLockStatus(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	info, err := ReadLockStatus(profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != nil {
		t.Error("expected nil for no lock")
	}

	pl := NewProfileLock(profile)
	pl.Acquire("run_7", "instagram")
	defer pl.Release()

	info, err = ReadLockStatus(profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected lock info")
	}
	if info.RunID != "run_7" {
		t.Errorf("expected runId='run_7', got %q", info.RunID)
	}
	if info.PID != os.Getpid() {
		t.Errorf("expected PID=%d, got %d", os.Getpid(), info.PID)
	}
}

func TestRecordChromePID(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile")
	os.MkdirAll(profile, 0755)

	pl := NewProfileLock(profile)
	if err := pl.Acquire("run_1", "tiktok"); err != nil {
		t.Fatalf("failed to acquire: %v", err)
	}
	defer pl.Release()

	if err := pl.RecordChromePID(4242); err != nil {
		t.Fatalf("failed to record chrome pid: %v", err)
	}
	info, err := ReadLockStatus(profile)
	if err != nil || info == nil {
		t.Fatalf("failed to read lock back: %v", err)
	}
	if info.ChromePID != 4242 {
		t.Errorf("expected chromePid=4242, got %d", info.ChromePID)
	}
}
