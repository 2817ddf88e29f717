package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd != "upgrade" {
		startUpdateCheck()
		defer printUpdateNotice()
	}

	switch cmd {
	case "-h", "--help", "help":
		showHelp()
	case "-v", "--version", "version":
		fmt.Printf("pubrun v%s\n", version)
	case "init":
		cmdInit(args)
	case "run":
		cmdRun(args)
	case "login":
		cmdLogin(args)
	case "ledger":
		cmdLedger(args)
	case "logs":
		cmdLogs(args)
	case "doctor":
		cmdDoctor(args)
	case "upgrade":
		cmdUpgrade(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'pubrun --help' for usage.")
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf(`pubrun v%s - Browser-automation publishing runner

Usage: pubrun <command> [options]

Commands:
  init                 Create a default pubrun.config.json
  run <asset>          Publish one asset (one run, one platform)
  login                Start a standalone interactive login session
  ledger               Show the upload idempotency ledger
  logs                 List past runs and their summaries
  doctor               Check the environment (chrome, profile, locks)
  upgrade              Upgrade pubrun to the latest version

Options:
  -h, --help           Show this help message
  -v, --version        Show version number

Examples:
  pubrun init
  pubrun run clip_001.mp4 --caption "new drop"
  pubrun run clip_001.mp4 --interactive-login --timeout 600
  pubrun login --port 9222
  pubrun ledger

File Structure:
  pubrun.config.json           # Project configuration (required)
  .pubrun/
    ledger.db                  # Idempotency ledger (asset, platform)
    runs/<run_id>/             # Per-run forensic artifacts
      run.log  steps.jsonl  summary.json  env.json  debug_*.html  debug_*.png
`, version)
}
