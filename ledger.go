package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// UploadLedger is the durable idempotency store mapping (asset, platform)
// to completion state. It outlives any single run and assumes one active
// writer per key; callers serialize runs per (asset, platform).
type UploadLedger struct {
	db *sql.DB
}

// LedgerEntry records one confirmed publish.
type LedgerEntry struct {
	AssetID     string
	Platform    string
	CompletedAt time.Time
	PublishedID string
}

// OpenLedger opens (and if needed creates) the ledger database.
func OpenLedger(path string) (*UploadLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		asset_id     TEXT NOT NULL,
		platform     TEXT NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		published_id TEXT,
		PRIMARY KEY (asset_id, platform)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	return &UploadLedger{db: db}, nil
}

// Close closes the underlying database.
func (l *UploadLedger) Close() error {
	return l.db.Close()
}

// AlreadyDone reports whether a confirmed publish exists for the key. Must
// be consulted before any publish attempt.
func (l *UploadLedger) AlreadyDone(assetID, platform string) (bool, error) {
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM uploads WHERE asset_id = ? AND platform = ?`,
		assetID, platform,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger read failed: %w", err)
	}
	return n > 0, nil
}

// MarkDone records a confirmed publish. Called only after the platform
// confirms success. An existing entry is never overwritten.
func (l *UploadLedger) MarkDone(assetID, platform, publishedID string, at time.Time) error {
	_, err := l.db.Exec(
		`INSERT OR IGNORE INTO uploads (asset_id, platform, completed_at, published_id)
		 VALUES (?, ?, ?, ?)`,
		assetID, platform, at.UTC(), publishedID,
	)
	if err != nil {
		return fmt.Errorf("ledger write failed: %w", err)
	}
	return nil
}

// Entries returns all ledger entries, newest first.
func (l *UploadLedger) Entries() ([]LedgerEntry, error) {
	rows, err := l.db.Query(
		`SELECT asset_id, platform, completed_at, COALESCE(published_id, '')
		 FROM uploads ORDER BY completed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ledger read failed: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.AssetID, &e.Platform, &e.CompletedAt, &e.PublishedID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
