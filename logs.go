package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RunListing summarizes one past run directory for `pubrun logs`.
type RunListing struct {
	RunID    string
	DebugDir string
	ModTime  time.Time
	Summary  *RunSummary // nil when the run died before the finalizer
	Steps    int
}

// ListRunDirs scans the runs directory and reads back each run's summary
// and step count, newest first.
func ListRunDirs(runsDir string) ([]RunListing, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunListing
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(runsDir, entry.Name())
		listing := RunListing{RunID: entry.Name(), DebugDir: dir}

		if info, err := entry.Info(); err == nil {
			listing.ModTime = info.ModTime()
		}
		if data, err := os.ReadFile(filepath.Join(dir, "summary.json")); err == nil {
			var s RunSummary
			if json.Unmarshal(data, &s) == nil {
				listing.Summary = &s
			}
		}
		if steps, err := ReadSteps(filepath.Join(dir, "steps.jsonl")); err == nil {
			listing.Steps = len(steps)
		}
		runs = append(runs, listing)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ModTime.After(runs[j].ModTime)
	})
	return runs, nil
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	steps := fs.Bool("steps", false, "print the step log of the most recent run")
	fs.Parse(args)

	root, _ := os.Getwd()
	cfg, err := LoadConfig(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runs, err := ListRunDirs(cfg.RunsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	if *steps {
		events, err := ReadSteps(filepath.Join(runs[0].DebugDir, "steps.jsonl"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, ev := range events {
			line := fmt.Sprintf("%s  %-4s  %s", ev.Timestamp.Format("15:04:05"), ev.Status, ev.Step)
			if ev.URL != "" {
				line += "  " + ev.URL
			}
			fmt.Println(line)
		}
		return
	}

	for _, r := range runs {
		status := "incomplete"
		if r.Summary != nil {
			if r.Summary.RC == 0 {
				status = "success"
			} else {
				status = fmt.Sprintf("failed (rc=%d, last=%s)", r.Summary.RC, r.Summary.LastStep)
			}
		}
		fmt.Printf("%-40s  %3d steps  %s\n", r.RunID, r.Steps, status)
	}
}
