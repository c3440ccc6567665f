// Package orchestrator wires the legendary client, the install coordinator
// and their observers (metrics, output log, dashboard) into one runtime.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MythicApp/Mythic-sub001/internal/cache"
	"github.com/MythicApp/Mythic-sub001/internal/config"
	"github.com/MythicApp/Mythic-sub001/internal/coordinator"
	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/logging"
	"github.com/MythicApp/Mythic-sub001/internal/metrics"
	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/preflight"
	"github.com/MythicApp/Mythic-sub001/internal/process"
	"github.com/MythicApp/Mythic-sub001/internal/registry"
	"github.com/MythicApp/Mythic-sub001/internal/stats"
	"github.com/MythicApp/Mythic-sub001/internal/tui"
)

// ErrOperationsFailed is returned by RunOperations when at least one
// operation did not succeed.
var ErrOperationsFailed = errors.New("one or more operations failed")

// Orchestrator owns every long-lived component of one process.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	output        *logging.OutputLogger
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	cache         *cache.Cache
	runner        *process.Runner
	client        *legendary.Client
	coord         *coordinator.Coordinator

	// Out is where banners and the exit summary go.
	Out io.Writer

	mu      sync.Mutex
	records []stats.OperationRecord
	program *tea.Program

	startTime time.Time
}

// New creates an Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		output:    logging.NewOutputLogger(logger, cfg.Verbose),
		registry:  prometheus.NewRegistry(),
		Out:       os.Stdout,
		startTime: time.Now(),
	}
	o.metrics = metrics.NewCollector(o.registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}

	o.runner = process.NewRunner(logger, process.StopPolicy{
		InterruptGrace: cfg.InterruptGrace,
		TerminateGrace: cfg.TerminateGrace,
	})

	if cfg.CacheEnabled {
		o.cache = cache.New(logger)
		o.cache.OnRefresh = o.metrics.CacheRefreshed
	}

	client, err := legendary.NewClient(legendary.Config{
		Path:        cfg.LegendaryPath,
		ConfigDir:   cfg.ConfigDir,
		InheritEnv:  cfg.InheritEnv,
		LockTimeout: cfg.LockTimeout,
		Runner:      o.runner,
		Registry: registry.New(logger, registry.Callbacks{
			OnStop: func(id string, pid int) {
				logger.Info("command_stop_requested", "id", id, "pid", pid)
			},
		}),
		Cache:  o.cache,
		Logger: logger,
		Hooks: legendary.Hooks{
			OnStart: o.metrics.CommandStarted,
			OnLine:  o.onLine,
			OnExit:  o.metrics.CommandFinished,
			OnCache: o.metrics.CacheLookup,
		},
	})
	if err != nil {
		return nil, err
	}
	o.client = client

	o.coord = coordinator.New(coordinator.Config{
		Executor: coordinator.LegendaryExecutor{Client: client},
		Logger:   logger,
		Callbacks: coordinator.Callbacks{
			OnStateChange: func(from, to coordinator.State) {
				logger.Debug("coordinator_state", "from", from.String(), "to", to.String())
			},
			OnStart:    o.onOperationStart,
			OnProgress: o.onProgress,
			OnComplete: o.onComplete,
		},
	})

	return o, nil
}

// Preflight runs the startup checks unless they are disabled.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	if o.config.SkipPreflight {
		return nil
	}
	result := preflight.RunAll(ctx, preflight.Options{
		LegendaryPath: o.config.LegendaryPath,
		ConfigDir:     o.config.ConfigDir,
		BaseDir:       o.config.BaseDir,
		MaxCommands:   2,
		Runner:        o.runner,
	})
	preflight.PrintResults(o.Out, result)
	if !result.Passed {
		return fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
	}
	return nil
}

// Start brings up the metrics server when one is configured.
func (o *Orchestrator) Start() error {
	if o.metricsServer == nil {
		return nil
	}
	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// RunOperations enqueues reqs and blocks until all of them finished, a signal
// arrives or ctx is done. With ui set the dashboard runs in the foreground.
// The exit summary is printed before returning.
func (o *Orchestrator) RunOperations(ctx context.Context, reqs []coordinator.Request, ui bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	for _, req := range reqs {
		if err := o.coord.Enqueue(req); err != nil {
			o.logger.Warn("operation_rejected", "request", req.String(), "error", err)
		}
	}

	if ui {
		o.runDashboard(ctx)
	} else {
		if err := o.coord.WaitIdle(ctx); err != nil {
			o.logger.Info("operations_interrupted", "reason", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := o.coord.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	o.printExitSummary()

	for _, r := range o.Records() {
		if r.Err != nil {
			return ErrOperationsFailed
		}
	}
	return nil
}

// runDashboard runs the TUI until the queue drains, the user quits or ctx
// is done.
func (o *Orchestrator) runDashboard(ctx context.Context) {
	model := tui.New(tui.Config{
		Source:      o.coord,
		Lines:       o.output,
		MetricsAddr: o.metricsAddrForDisplay(),
		Cancel:      o.coord.Cancel,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	o.mu.Lock()
	o.program = p
	o.mu.Unlock()

	go func() {
		if err := o.coord.WaitIdle(ctx); err == nil {
			tui.SendQuit(p)
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		o.logger.Warn("dashboard_error", "error", err)
	}

	o.mu.Lock()
	o.program = nil
	o.mu.Unlock()
}

// Close stops every registered command and releases the metrics server and
// the cache.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if err := o.client.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if o.cache != nil {
		o.cache.Close()
	}
	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Callback handlers

func (o *Orchestrator) onLine(id string, l parser.Line) {
	o.output.Observe(id, l)
	o.metrics.OutputLine(id, l)
}

func (o *Orchestrator) onOperationStart(req coordinator.Request) {
	o.metrics.SetQueueLength(len(o.coord.Queue()))
}

func (o *Orchestrator) onProgress(req coordinator.Request, snap parser.Snapshot) {
	o.metrics.SetProgress(snap)
}

func (o *Orchestrator) onComplete(out coordinator.Outcome) {
	o.metrics.OperationFinished(out.Request.Kind.String(), out.Label(), out.Duration())
	o.metrics.SetQueueLength(len(o.coord.Queue()))

	if out.Err != nil && !out.Cancelled() {
		for _, l := range o.output.RecentLinesFor(legendary.InstallID(out.Request.Game), 5) {
			o.logger.Info("operation_failed_context", "game", out.Request.Game, "line", l.Text)
		}
	}

	o.mu.Lock()
	o.records = append(o.records, stats.OperationRecord{
		Game:     out.Request.Game,
		Kind:     out.Request.Kind.String(),
		Err:      out.Err,
		Duration: out.Duration(),
		Download: out.Download,
		Disk:     out.Disk,
	})
	p := o.program
	o.mu.Unlock()

	tui.SendOutcome(p, out)
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary() {
	s := o.metrics.GenerateSummary()
	lines := o.output.CountSeverities()
	o.logger.Info("run_summary",
		"duration", s.Duration.String(),
		"commands", s.TotalStarts,
		"peak_running", s.PeakRunning,
		"succeeded", s.Outcomes["succeeded"],
		"failed", s.Outcomes["failed"],
		"cancelled", s.Outcomes["cancelled"],
		"error_lines", lines[parser.SeverityError]+lines[parser.SeverityCritical],
		"warning_lines", lines[parser.SeverityWarning],
	)

	fmt.Fprint(o.Out, stats.FormatRunSummary(o.Records(), stats.SummaryConfig{
		Duration:    time.Since(o.startTime),
		MetricsAddr: o.metricsAddrForDisplay(),
		Cancelled:   func(err error) bool { return errors.Is(err, coordinator.ErrCancelled) },
	}))
}

func (o *Orchestrator) metricsAddrForDisplay() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}

// Records returns the finished operations in completion order.
func (o *Orchestrator) Records() []stats.OperationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]stats.OperationRecord, len(o.records))
	copy(out, o.records)
	return out
}

// Client returns the legendary client for direct invocations.
func (o *Orchestrator) Client() *legendary.Client {
	return o.client
}

// Coordinator returns the install coordinator.
func (o *Orchestrator) Coordinator() *coordinator.Coordinator {
	return o.coord
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Gatherer returns the registry the metrics live on.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.registry
}

// Output returns the output logger.
func (o *Orchestrator) Output() *logging.OutputLogger {
	return o.output
}
