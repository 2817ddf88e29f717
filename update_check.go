package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const releaseSlug = "scripness/pubrun"

// releaseCheck caches the last release lookup so unattended runs on a
// schedule do not hit the release API every invocation.
type releaseCheck struct {
	CheckedAt time.Time `json:"checkedAt"`
	Latest    string    `json:"latest"`
}

func (c releaseCheck) fresh() bool {
	return time.Since(c.CheckedAt) < 24*time.Hour
}

// updateNotice receives the newer version string, if one exists, from the
// background check started at command entry.
var updateNotice chan string

// startUpdateCheck looks for a newer release in the background. Dev builds
// skip the check entirely. printUpdateNotice reports the result at exit.
func startUpdateCheck() {
	if version == "dev" {
		return
	}

	updateNotice = make(chan string, 1)
	go func() {
		defer func() {
			// A release lookup must never take the run down with it.
			recover()
		}()
		if latest, ok := newerRelease(); ok {
			updateNotice <- latest
		}
		close(updateNotice)
	}()
}

// printUpdateNotice prints an upgrade hint when the background check found
// a newer release. Never blocks; a slow check is simply not reported.
func printUpdateNotice() {
	if updateNotice == nil {
		return
	}
	select {
	case latest, ok := <-updateNotice:
		if ok && latest != "" {
			fmt.Fprintf(os.Stderr, "\npubrun v%s is available (you have v%s). Run 'pubrun upgrade'.\n",
				latest, version)
		}
	default:
	}
}

// newerRelease returns the latest published version when it is newer than
// the running one, consulting the cache before the release API.
func newerRelease() (string, bool) {
	cachePath := releaseCachePath()

	var cached releaseCheck
	if data, err := os.ReadFile(cachePath); err == nil {
		if json.Unmarshal(data, &cached) == nil && cached.fresh() {
			if cached.Latest != "" && cached.Latest != version {
				return cached.Latest, true
			}
			return "", false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil || !found {
		return "", false
	}

	cached = releaseCheck{CheckedAt: time.Now(), Latest: latest.Version()}
	if data, err := json.Marshal(cached); err == nil {
		os.MkdirAll(filepath.Dir(cachePath), 0755)
		os.WriteFile(cachePath, data, 0644)
	}

	if latest.LessOrEqual(version) {
		return "", false
	}
	return latest.Version(), true
}

func releaseCachePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pubrun", "release-check.json")
	}
	return filepath.Join(os.TempDir(), "pubrun-release-check.json")
}
