package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LegendaryPath != "legendary" {
		t.Errorf("LegendaryPath = %q, want legendary", cfg.LegendaryPath)
	}
	if cfg.Platform != "Windows" {
		t.Errorf("Platform = %q, want Windows", cfg.Platform)
	}
	if cfg.InterruptGrace != 5*time.Second {
		t.Errorf("InterruptGrace = %v, want 5s", cfg.InterruptGrace)
	}
	if cfg.TerminateGrace != 2*time.Second {
		t.Errorf("TerminateGrace = %v, want 2s", cfg.TerminateGrace)
	}
	if !cfg.InheritEnv {
		t.Error("InheritEnv should default to true")
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
legendary_path = "/opt/legendary/bin/legendary"
platform = "Mac"
inherit_env = false
interrupt_grace = "3s"
metrics_addr = "127.0.0.1:9100"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.LegendaryPath != "/opt/legendary/bin/legendary" {
		t.Errorf("LegendaryPath = %q", cfg.LegendaryPath)
	}
	if cfg.Platform != "Mac" {
		t.Errorf("Platform = %q", cfg.Platform)
	}
	if cfg.InheritEnv {
		t.Error("InheritEnv should be false from file")
	}
	if cfg.InterruptGrace != 3*time.Second {
		t.Errorf("InterruptGrace = %v, want 3s", cfg.InterruptGrace)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	// Unset keys keep their defaults.
	if cfg.TerminateGrace != 2*time.Second {
		t.Errorf("TerminateGrace = %v, want default 2s", cfg.TerminateGrace)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
	if err := LoadFile(cfg, ""); err != nil {
		t.Errorf("empty path should not be an error: %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"syntax", "legendary_path = "},
		{"unknown_key", `legendary = "x"`},
		{"wrong_type", `cache_enabled = "yes"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if err := LoadFile(DefaultConfig(), path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBindFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)

	err := fs.Parse([]string{
		"--legendary", "/usr/local/bin/legendary",
		"--platform", "Mac",
		"--inherit-env=false",
		"--interrupt-grace", "1s",
		"--cache=false",
		"-v",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.LegendaryPath != "/usr/local/bin/legendary" {
		t.Errorf("LegendaryPath = %q", cfg.LegendaryPath)
	}
	if cfg.Platform != "Mac" {
		t.Errorf("Platform = %q", cfg.Platform)
	}
	if cfg.InheritEnv {
		t.Error("InheritEnv should be false")
	}
	if cfg.InterruptGrace != time.Second {
		t.Errorf("InterruptGrace = %v", cfg.InterruptGrace)
	}
	if cfg.CacheEnabled {
		t.Error("CacheEnabled should be false")
	}
	if !cfg.Verbose {
		t.Error("Verbose should be true")
	}
}

func TestBindFlags_DefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`platform = "Mac"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "Mac" {
		t.Errorf("file value lost after binding flags: %q", cfg.Platform)
	}
	if got := fs.Lookup("platform").DefValue; got != "Mac" {
		t.Errorf("flag default = %q, want Mac", got)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = "0.0.0.0:17091"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty_path", func(c *Config) { c.LegendaryPath = " " }, "legendary_path"},
		{"platform", func(c *Config) { c.Platform = "Linux" }, "platform"},
		{"platform_case", func(c *Config) { c.Platform = "windows" }, "platform"},
		{"interrupt_grace", func(c *Config) { c.InterruptGrace = 0 }, "interrupt_grace"},
		{"terminate_grace", func(c *Config) { c.TerminateGrace = -time.Second }, "terminate_grace"},
		{"lock_timeout", func(c *Config) { c.LockTimeout = -1 }, "lock_timeout"},
		{"log_format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"log_level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"metrics_url", func(c *Config) { c.MetricsAddr = "http://localhost:9100" }, "metrics_addr"},
		{"metrics_no_port", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error should mention %s: %v", tc.field, err)
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error should contain a ValidationError: %v", err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LegendaryPath = ""
	cfg.Platform = "Linux"
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	errStr := err.Error()
	for _, field := range []string{"legendary_path", "platform", "log_format"} {
		if !strings.Contains(errStr, field) {
			t.Errorf("error should mention %s: %v", field, err)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "test_field", Message: "test message"}
	if got := err.Error(); got != "test_field: test message" {
		t.Errorf("Error() = %q", got)
	}
}
