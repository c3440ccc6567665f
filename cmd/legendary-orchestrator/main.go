// Package main provides the legendary-orchestrator CLI entry point.
//
// legendary-orchestrator drives the legendary game store client: it queues
// installs, updates and repairs, answers the tool's prompts, stops runs
// cleanly and reports progress on a live dashboard or as structured logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MythicApp/Mythic-sub001/internal/config"
	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/logging"
	"github.com/MythicApp/Mythic-sub001/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/legendary-orchestrator
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.DefaultConfig()
	configPath := configPathFromArgs(args)
	if err := config.LoadFile(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	app := &app{cfg: cfg}
	root := app.rootCmd(configPath)
	root.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, orchestrator.ErrOperationsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// configPathFromArgs finds --config before cobra parses anything, since the
// file supplies the flag defaults.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return config.DefaultPath()
}

// app carries what every subcommand shares.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// dashboard is set when the live TUI owns the terminal.
	dashboard bool
}

func (a *app) rootCmd(configPath string) *cobra.Command {
	root := &cobra.Command{
		Use:   "legendary-orchestrator",
		Short: "Queue and supervise legendary installs",
		Long: `legendary-orchestrator wraps the legendary CLI.

It serialises installs, updates and repairs against one legendary config
directory, answers the tool's interactive prompts, parses its progress output
and stops runs with SIGINT, SIGTERM and SIGKILL in turn.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Parsed ahead of cobra by configPathFromArgs; registered for --help.
	root.PersistentFlags().String("config", configPath, "TOML config file")
	config.BindFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		a.operationCmd("install", "Install games", legendary.KindInstall),
		a.operationCmd("update", "Update installed games", legendary.KindUpdate),
		a.operationCmd("repair", "Verify and repair installed games", legendary.KindRepair),
		a.uninstallCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.libraryCmd(),
		a.installedCmd(),
		a.statusCmd(),
		a.moveCmd(),
		a.metricsCmd(),
		a.versionCmd(),
	)
	return root
}

// setup validates the merged configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.Validate(a.cfg); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// The dashboard only runs for queued operations on a terminal. Logs
	// would tear its frames, so they are discarded while it runs.
	a.dashboard = cmd.Annotations["dashboard"] == "true" &&
		a.cfg.TUIEnabled &&
		term.IsTerminal(int(os.Stdout.Fd()))

	if a.dashboard {
		a.logger = logging.NewLoggerTo(io.Discard, a.cfg.LogFormat, a.cfg.LogLevel, a.cfg.Verbose)
	} else {
		a.logger = logging.NewLogger(a.cfg.LogFormat, a.cfg.LogLevel, a.cfg.Verbose)
	}
	logging.SetDefault(a.logger)
	return nil
}

// newOrchestrator builds the runtime and arranges for it to be closed.
func (a *app) newOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, func(), error) {
	o, err := orchestrator.New(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	o.Out = cmd.OutOrStdout()
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.InterruptGrace+a.cfg.TerminateGrace+stopSlack)
		defer cancel()
		if err := o.Close(ctx); err != nil {
			a.logger.Warn("close_failed", "error", err)
		}
	}
	return o, closeFn, nil
}

// printBanner prints the startup banner.
func (a *app) printBanner(w io.Writer, games []string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                     legendary-orchestrator                        ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Games:       %s\n", strings.Join(games, ", "))
	fmt.Fprintf(w, "  Platform:    %s\n", a.cfg.Platform)
	fmt.Fprintf(w, "  Tool:        %s\n", a.cfg.LegendaryPath)
	fmt.Fprintf(w, "  Config dir:  %s\n", a.cfg.ConfigDir)
	if a.cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", a.cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
