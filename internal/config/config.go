// Package config provides configuration management for legendary-orchestrator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Tool
	LegendaryPath string `json:"legendary_path" toml:"legendary_path"`
	ConfigDir     string `json:"config_dir" toml:"config_dir"` // exported as LEGENDARY_CONFIG_PATH
	BaseDir       string `json:"base_dir" toml:"base_dir"`
	Platform      string `json:"platform" toml:"platform"` // Windows, Mac

	// Child environment: when false the child sees only the variables the
	// orchestrator sets explicitly.
	InheritEnv bool `json:"inherit_env" toml:"inherit_env"`

	// Stop escalation
	InterruptGrace time.Duration `json:"interrupt_grace" toml:"interrupt_grace"`
	TerminateGrace time.Duration `json:"terminate_grace" toml:"terminate_grace"`

	// Cache and locking
	CacheEnabled bool          `json:"cache_enabled" toml:"cache_enabled"`
	LockTimeout  time.Duration `json:"lock_timeout" toml:"lock_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr" toml:"metrics_addr"` // empty disables
	LogFormat   string `json:"log_format" toml:"log_format"`     // json, text
	LogLevel    string `json:"log_level" toml:"log_level"`
	Verbose     bool   `json:"verbose" toml:"verbose"`
	TUIEnabled  bool   `json:"tui" toml:"tui"`

	// Diagnostics
	SkipPreflight bool `json:"skip_preflight" toml:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LegendaryPath: "legendary",
		ConfigDir:     defaultToolConfigDir(),
		Platform:      "Windows",

		InheritEnv: true,

		InterruptGrace: 5 * time.Second,
		TerminateGrace: 2 * time.Second,

		CacheEnabled: true,
		LockTimeout:  30 * time.Second,

		MetricsAddr: "",
		LogFormat:   "json",
		LogLevel:    "info",
		Verbose:     false,
		TUIEnabled:  true,
	}
}

// DefaultPath returns where LoadFile looks when no --config is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "legendary-orchestrator", "config.toml")
}

func defaultToolConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "legendary")
}

// LoadFile overlays the TOML file at path onto cfg. A missing file leaves cfg
// untouched. Keys the file does not set keep their current values.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parsing config %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}
