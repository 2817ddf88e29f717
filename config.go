package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Config is the main configuration loaded from pubrun.config.json, plus the
// per-run overrides supplied on the command line. Everything is an explicit
// value passed at construction; nothing reads the environment after load.
type Config struct {
	Platform   string `json:"platform"`             // "tiktok", "instagram", "youtube"
	ProfileDir string `json:"profileDir"`           // persistent Chrome --user-data-dir
	ChromePath string `json:"chromePath,omitempty"` // defaults to "google-chrome"
	Headless   bool   `json:"headless,omitempty"`

	InteractiveLogin       bool `json:"interactiveLogin,omitempty"`
	InteractiveTimeoutSecs int  `json:"interactiveTimeoutSecs,omitempty"` // default 900
	DebugPort              int  `json:"debugPort,omitempty"`              // default 9222

	LedgerPath       string `json:"ledgerPath,omitempty"` // default .pubrun/ledger.db
	RunsDir          string `json:"runsDir,omitempty"`    // default .pubrun/runs
	ArchiveArtifacts bool   `json:"archiveArtifacts,omitempty"`

	UploadTimeoutSecs int `json:"uploadTimeoutSecs,omitempty"` // default 600

	// Per-run values, not part of the config file.
	RunID    string `json:"-"` // optional override, generated when empty
	DebugDir string `json:"-"` // optional override of the artifact directory
	Asset    string `json:"-"` // path of the video asset to publish
	Caption  string `json:"-"`
}

// ConfigPath returns the path to pubrun.config.json
func ConfigPath(root string) string {
	return filepath.Join(root, "pubrun.config.json")
}

// LoadConfig loads and validates pubrun.config.json
func LoadConfig(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pubrun.config.json not found in %s", root)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid pubrun.config.json: %w", err)
	}

	applyConfigDefaults(&cfg, root)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyConfigDefaults(cfg *Config, root string) {
	if cfg.ChromePath == "" {
		cfg.ChromePath = "google-chrome"
	}
	if cfg.InteractiveTimeoutSecs <= 0 {
		cfg.InteractiveTimeoutSecs = 900
	}
	if cfg.DebugPort <= 0 {
		cfg.DebugPort = 9222
	}
	if cfg.UploadTimeoutSecs <= 0 {
		cfg.UploadTimeoutSecs = 600
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(root, ".pubrun", "ledger.db")
	}
	if cfg.RunsDir == "" {
		cfg.RunsDir = filepath.Join(root, ".pubrun", "runs")
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if _, err := LookupPlatform(cfg.Platform); err != nil {
		return err
	}
	if cfg.ProfileDir == "" {
		return fmt.Errorf("profileDir is required")
	}
	return nil
}

// WriteDefaultConfig writes a default pubrun.config.json
func WriteDefaultConfig(root string) error {
	cfg := Config{
		Platform:               "tiktok",
		ProfileDir:             filepath.Join(root, ".pubrun", "profile"),
		Headless:               true,
		InteractiveLogin:       true,
		InteractiveTimeoutSecs: 900,
		DebugPort:              9222,
	}
	return AtomicWriteJSON(ConfigPath(root), cfg)
}

// isCommandAvailable checks if a command is available in PATH
func isCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
