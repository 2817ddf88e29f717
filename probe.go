package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckFunc is the lightweight authentication probe used while waiting for
// a human to complete login. Cheaper than a full page classification; it is
// a best-effort heuristic and is injectable so tests control it.
type CheckFunc func() (bool, error)

// SessionCookieProbe returns a CheckFunc that inspects the Chrome profile's
// Cookies database for the platform's session cookies. The database is
// opened read-only and immutable so the probe never contends with the live
// browser. Cookie values are never read or logged, only presence.
func SessionCookieProbe(profileDir string, p *Platform) CheckFunc {
	return func() (bool, error) {
		cookieDB, err := findCookieDB(profileDir)
		if err != nil {
			return false, err
		}

		uri := fmt.Sprintf("file:%s?mode=ro&immutable=1", cookieDB)
		db, err := sql.Open("sqlite", uri)
		if err != nil {
			return false, fmt.Errorf("open cookie db: %w", err)
		}
		defer db.Close()

		placeholders := strings.Repeat("?,", len(p.SessionCookies))
		placeholders = strings.TrimSuffix(placeholders, ",")
		query := fmt.Sprintf(
			`SELECT COUNT(*) FROM cookies WHERE host_key LIKE ? AND name IN (%s)`,
			placeholders)

		args := make([]any, 0, len(p.SessionCookies)+1)
		args = append(args, "%"+p.CookieHost+"%")
		for _, name := range p.SessionCookies {
			args = append(args, name)
		}

		var n int
		if err := db.QueryRow(query, args...).Scan(&n); err != nil {
			return false, fmt.Errorf("query cookie db: %w", err)
		}
		return n > 0, nil
	}
}

// findCookieDB locates the Cookies SQLite file under a Chrome
// --user-data-dir. Only a small set of likely locations is scanned; no
// recursive walk.
func findCookieDB(profileDir string) (string, error) {
	candidates := []string{
		filepath.Join(profileDir, "Default", "Cookies"),
		filepath.Join(profileDir, "Profile 1", "Cookies"),
		filepath.Join(profileDir, "Profile 2", "Cookies"),
		filepath.Join(profileDir, "Cookies"),
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}

	entries, err := os.ReadDir(profileDir)
	if err != nil {
		return "", fmt.Errorf("read profile dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c := filepath.Join(profileDir, e.Name(), "Cookies")
		if fileExists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no Cookies database under %s", profileDir)
}
