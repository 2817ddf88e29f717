package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func cmdInit(args []string) {
	root, _ := os.Getwd()
	if fileExists(ConfigPath(root)) {
		fmt.Fprintln(os.Stderr, "pubrun.config.json already exists")
		os.Exit(1)
	}
	if err := WriteDefaultConfig(root); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Created pubrun.config.json")
	fmt.Println("Edit platform and profileDir, then run 'pubrun doctor'.")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	caption := fs.String("caption", "", "caption/description for the post")
	runID := fs.String("run-id", "", "override the generated run id")
	debugDir := fs.String("debug-dir", "", "override the artifact directory")
	interactive := fs.Bool("interactive-login", false, "enable human-assisted login on auth failure")
	timeout := fs.Int("timeout", 0, "interactive login timeout in seconds")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pubrun run <asset> [options]")
		os.Exit(1)
	}

	root, _ := os.Getwd()
	cfg, err := LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg.Asset = fs.Arg(0)
	cfg.Caption = *caption
	cfg.RunID = *runID
	cfg.DebugDir = *debugDir
	if *interactive {
		cfg.InteractiveLogin = true
	}
	if *timeout > 0 {
		cfg.InteractiveTimeoutSecs = *timeout
	}

	if !fileExists(cfg.Asset) {
		fmt.Fprintf(os.Stderr, "Error: asset not found: %s\n", cfg.Asset)
		os.Exit(1)
	}

	sup, err := NewSupervisor(cfg, NewSessionUploader(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rc, err := sup.Run(context.Background())
	if err != nil && !errors.Is(err, ErrAlreadyPublished) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(rc)
}

// cmdLogin runs a standalone interactive login session against the profile,
// outside any publish run. Useful for seeding a fresh profile.
func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	port := fs.Int("port", 0, "DevTools debug port (default from config)")
	timeout := fs.Int("timeout", 0, "login timeout in seconds")
	fs.Parse(args)

	root, _ := os.Getwd()
	cfg, err := LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.DebugPort = *port
	}
	if *timeout > 0 {
		cfg.InteractiveTimeoutSecs = *timeout
	}
	cfg.RunID = NewRunID(cfg.Platform + "_login")

	platform, err := LookupPlatform(cfg.Platform)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lock := NewProfileLock(cfg.ProfileDir)
	if err := lock.Acquire(cfg.RunID, cfg.Platform); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()
	ClearStaleProfileMarkers(cfg.ProfileDir)

	run, err := NewRunContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer run.Close()
	rec := NewStepRecorder(run)
	defer rec.Close()

	ctl := NewInteractiveLoginController(run, rec, cfg.ChromePath)
	session, err := ctl.Start(cfg.ProfileDir, cfg.DebugPort, platform.LoginURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if pid := session.Pid(); pid > 0 {
		lock.RecordChromePID(pid)
	}
	defer ctl.Stop(session)

	probe := SessionCookieProbe(cfg.ProfileDir, platform)
	state := ctl.WaitForLogin(session, probe, time.Duration(cfg.InteractiveTimeoutSecs)*time.Second)
	ctl.Stop(session)

	if state != SessionAuthenticated {
		fmt.Fprintln(os.Stderr, "Login not detected before timeout.")
		os.Exit(1)
	}
	fmt.Printf("Login detected. Profile ready: %s\n", cfg.ProfileDir)
}

func cmdLedger(args []string) {
	root, _ := os.Getwd()
	cfg, err := LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ledger, err := OpenLedger(cfg.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	entries, err := ledger.Entries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("Ledger is empty.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-10s  %s", e.CompletedAt.Format(time.RFC3339), e.Platform, e.AssetID)
		if e.PublishedID != "" {
			line += "  (" + e.PublishedID + ")"
		}
		fmt.Println(line)
	}
}

func cmdDoctor(args []string) {
	root, _ := os.Getwd()
	cfg, err := LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	issues := 0
	check := func(ok bool, okMsg, failMsg string) {
		if ok {
			fmt.Printf("  ok   %s\n", okMsg)
		} else {
			fmt.Printf("  FAIL %s\n", failMsg)
			issues++
		}
	}

	fmt.Println("pubrun doctor")
	check(isCommandAvailable(cfg.ChromePath),
		fmt.Sprintf("chrome binary: %s", cfg.ChromePath),
		fmt.Sprintf("chrome binary not in PATH: %s", cfg.ChromePath))
	check(fileExists(cfg.ProfileDir),
		fmt.Sprintf("profile dir: %s", cfg.ProfileDir),
		fmt.Sprintf("profile dir missing: %s (run 'pubrun login' to seed it)", cfg.ProfileDir))

	if info, err := ReadLockStatus(cfg.ProfileDir); err == nil && info != nil {
		if isLockStale(info) {
			fmt.Printf("  warn stale profile lock from run %s (PID %d), next run will clear it\n",
				info.RunID, info.PID)
		} else {
			fmt.Printf("  warn profile locked by live run %s (PID %d)\n", info.RunID, info.PID)
		}
	} else {
		fmt.Println("  ok   no profile lock held")
	}

	for _, name := range chromeSingletonMarkers {
		// Lstat: Singleton* are symlinks and may dangle after a crash.
		if _, err := os.Lstat(filepath.Join(cfg.ProfileDir, name)); err == nil {
			fmt.Printf("  warn stale %s in profile, next run will clear it\n", name)
		}
	}

	if issues > 0 {
		os.Exit(1)
	}
}
