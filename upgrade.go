package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	selfupdate "github.com/creativeprojects/go-selfupdate"
)

// cmdUpgrade replaces the running binary with the latest published
// release. Runs are unaffected; the swap happens on the executable file,
// not the live process.
func cmdUpgrade(args []string) {
	fmt.Println("Looking up the latest release...")

	latest, found, err := selfupdate.DetectLatest(context.Background(), selfupdate.ParseSlug(releaseSlug))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Release lookup failed: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "No release published for %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(1)
	}

	if latest.LessOrEqual(version) {
		fmt.Printf("pubrun v%s is already the latest release.\n", version)
		return
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot locate the running binary: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Upgrading v%s -> v%s...\n", version, latest.Version())
	if err := selfupdate.UpdateTo(context.Background(), latest.AssetURL, latest.AssetName, exe); err != nil {
		fmt.Fprintf(os.Stderr, "Upgrade failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Now running pubrun v%s.\n", latest.Version())
}
