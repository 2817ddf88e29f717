package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLedger_MarkThenAlreadyDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer ledger.Close()

	done, err := ledger.AlreadyDone("v1", "tiktok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Error("unseen key should not be done")
	}

	if err := ledger.MarkDone("v1", "tiktok", "post123", time.Now()); err != nil {
		t.Fatalf("failed to mark done: %v", err)
	}

	done, err = ledger.AlreadyDone("v1", "tiktok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("marked key should be done")
	}

	// Same asset, different platform: separate key.
	done, _ = ledger.AlreadyDone("v1", "instagram")
	if done {
		t.Error("different platform should be a different key")
	}
}

func TestLedger_NeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer ledger.Close()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := ledger.MarkDone("v1", "tiktok", "original", first); err != nil {
		t.Fatalf("failed to mark done: %v", err)
	}
	// A second mark for the same key must be a no-op, not an overwrite.
	if err := ledger.MarkDone("v1", "tiktok", "imposter", time.Now()); err != nil {
		t.Fatalf("second mark should not error: %v", err)
	}

	entries, err := ledger.Entries()
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].PublishedID != "original" {
		t.Errorf("entry was overwritten: got published id %q", entries[0].PublishedID)
	}
}

func TestLedger_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	ledger, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	if err := ledger.MarkDone("v2", "youtube", "", time.Now()); err != nil {
		t.Fatalf("failed to mark done: %v", err)
	}
	ledger.Close()

	reopened, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("failed to reopen ledger: %v", err)
	}
	defer reopened.Close()

	done, err := reopened.AlreadyDone("v2", "youtube")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("entry should survive process restart")
	}
}
