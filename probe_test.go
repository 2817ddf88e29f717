package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

// seedCookieDB builds a minimal Chrome Cookies database under
// <profile>/Default with the given (host_key, name) rows.
func seedCookieDB(t *testing.T, profileDir string, rows [][2]string) {
	t.Helper()
	dbDir := filepath.Join(profileDir, "Default")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		t.Fatalf("failed to create profile dir: %v", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dbDir, "Cookies"))
	if err != nil {
		t.Fatalf("failed to create cookie db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE cookies (host_key TEXT, name TEXT, value TEXT)`); err != nil {
		t.Fatalf("failed to create cookies table: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO cookies (host_key, name, value) VALUES (?, ?, ?)`, r[0], r[1], "x"); err != nil {
			t.Fatalf("failed to insert cookie row: %v", err)
		}
	}
}

func TestSessionCookieProbe_SessionCookiePresent(t *testing.T) {
	profile := t.TempDir()
	seedCookieDB(t, profile, [][2]string{
		{".instagram.com", "csrftoken"},
		{".instagram.com", "sessionid"},
	})

	p, err := LookupPlatform("instagram")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := SessionCookieProbe(profile, p)()
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if !ok {
		t.Error("expected probe to find the session cookie")
	}
}

func TestSessionCookieProbe_NoSessionCookie(t *testing.T) {
	profile := t.TempDir()
	seedCookieDB(t, profile, [][2]string{
		{".instagram.com", "csrftoken"},
		{".google.com", "sessionid"}, // right name, wrong host
	})

	p, err := LookupPlatform("instagram")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := SessionCookieProbe(profile, p)()
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if ok {
		t.Error("probe must not match cookies from other hosts")
	}
}

func TestSessionCookieProbe_MissingDatabaseIsError(t *testing.T) {
	profile := t.TempDir()

	p, err := LookupPlatform("instagram")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := SessionCookieProbe(profile, p)()
	if err == nil {
		t.Error("expected an error for a profile with no Cookies database")
	}
	if ok {
		t.Error("probe must not report authenticated on error")
	}
}

func TestFindCookieDB_NonDefaultProfile(t *testing.T) {
	profile := t.TempDir()
	dbDir := filepath.Join(profile, "Profile 3")
	os.MkdirAll(dbDir, 0755)
	os.WriteFile(filepath.Join(dbDir, "Cookies"), []byte{}, 0644)

	found, err := findCookieDB(profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != filepath.Join(dbDir, "Cookies") {
		t.Errorf("expected %s, got %s", filepath.Join(dbDir, "Cookies"), found)
	}
}
