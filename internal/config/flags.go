package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the persistent flags shared by every subcommand. Flag
// defaults are taken from cfg, so load the config file before binding.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	// Tool
	fs.StringVar(&cfg.LegendaryPath, "legendary", cfg.LegendaryPath, "Path to the legendary binary")
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "legendary state directory (exported as LEGENDARY_CONFIG_PATH)")
	fs.StringVar(&cfg.BaseDir, "base-path", cfg.BaseDir, "Directory games are installed under")
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, `Build platform: "Windows" or "Mac"`)
	fs.BoolVar(&cfg.InheritEnv, "inherit-env", cfg.InheritEnv, "Start the tool from this process's environment (-inherit-env=false passes only explicit variables)")

	// Stop escalation
	fs.DurationVar(&cfg.InterruptGrace, "interrupt-grace", cfg.InterruptGrace, "Wait after SIGINT before SIGTERM")
	fs.DurationVar(&cfg.TerminateGrace, "terminate-grace", cfg.TerminateGrace, "Wait after SIGTERM before SIGKILL")

	// Cache and locking
	fs.BoolVar(&cfg.CacheEnabled, "cache", cfg.CacheEnabled, "Serve read-only queries from cache and refresh in the background")
	fs.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "How long to wait for the config directory lock (0 = forever)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging, including tool progress lines")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard when stdout is a terminal")

	// Diagnostics
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
}
