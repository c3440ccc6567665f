package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/MythicApp/Mythic-sub001/internal/config"
	"github.com/MythicApp/Mythic-sub001/internal/coordinator"
	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/metrics"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const toolScript = `#!/bin/sh
for a in "$@"; do
	if [ "$a" = "--version" ]; then
		echo 'legendary version "0.20.34", codename "Direct Intervention"'
		exit 0
	fi
done
case "$*" in
*Broken*)
	echo "[cli] ERROR: Game is not installed" >&2
	exit 0
	;;
*Slow*)
	echo "[DLManager] INFO: = Progress: 5.00% (50/1000), Running for 00:00:05, ETA: 00:01:35" >&2
	sleep 30
	;;
esac
printf 'Do you wish to install? [Y/n]: '
read answer
printf 'Additional packs [Enter to confirm]: '
read packs
echo "[DLManager] INFO: = Progress: 50.00% (500/1000), Running for 00:00:10, ETA: 00:00:10" >&2
echo "[DLManager] INFO:  + Download	- 12.00 MiB/s (raw) / 24.00 MiB/s (decompressed)" >&2
echo "[DLManager] INFO: = Progress: 100.00% (1000/1000), Running for 00:00:20, ETA: 00:00:00" >&2
echo "[cli] INFO: Finished installation process in 20.0 seconds." >&2
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legendary")
	if err := os.WriteFile(path, []byte(toolScript), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.LegendaryPath = path
	cfg.ConfigDir = t.TempDir()
	cfg.InterruptGrace = 300 * time.Millisecond
	cfg.TerminateGrace = 300 * time.Millisecond
	cfg.LockTimeout = time.Second
	cfg.TUIEnabled = false
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	o, err := New(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	o.Out = &out
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})
	return o, &out
}

func install(game string) coordinator.Request {
	return coordinator.Request{Game: game, Kind: legendary.KindInstall, Platform: legendary.PlatformWindows}
}

// sample returns the value of one gathered series, or -1 when absent.
func sample(t *testing.T, o *Orchestrator, name, labels string) float64 {
	t.Helper()
	families, err := o.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	for _, s := range metrics.Flatten(byName) {
		if s.Name == name && s.Labels == labels {
			return s.Value
		}
	}
	return -1
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_RequiresLegendaryPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LegendaryPath = ""
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for empty legendary path")
	}
}

func TestOrchestrator_RunOperations_Success(t *testing.T) {
	o, out := newTestOrchestrator(t, testConfig(t))

	err := o.RunOperations(t.Context(), []coordinator.Request{install("Fortnite"), install("Sugar")}, false)
	if err != nil {
		t.Fatalf("RunOperations() error = %v", err)
	}

	records := o.Records()
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Game != "Fortnite" || records[1].Game != "Sugar" {
		t.Errorf("completion order = %s, %s", records[0].Game, records[1].Game)
	}
	for _, r := range records {
		if r.Err != nil {
			t.Errorf("%s: err = %v", r.Game, r.Err)
		}
		if r.Kind != "install" {
			t.Errorf("%s: kind = %s", r.Game, r.Kind)
		}
	}

	if got := sample(t, o, "legendary_orchestrator_operations_total", "kind=install,outcome=succeeded"); got != 2 {
		t.Errorf("operations_total{succeeded} = %v, want 2", got)
	}
	if got := sample(t, o, "legendary_orchestrator_commands_finished_total", "result=success"); got != 2 {
		t.Errorf("commands_finished_total{success} = %v, want 2", got)
	}
	if got := sample(t, o, "legendary_orchestrator_commands_running", ""); got != 0 {
		t.Errorf("commands_running = %v, want 0", got)
	}

	summary := out.String()
	for _, want := range []string{"Summary", "Fortnite", "Sugar"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	if len(o.Output().RecentLinesFor(legendary.InstallID("Fortnite"), 10)) == 0 {
		t.Error("output logger saw no lines")
	}
}

func TestOrchestrator_RunOperations_FailureDoesNotStopQueue(t *testing.T) {
	o, out := newTestOrchestrator(t, testConfig(t))

	err := o.RunOperations(t.Context(), []coordinator.Request{install("Broken"), install("Fortnite")}, false)
	if !errors.Is(err, ErrOperationsFailed) {
		t.Fatalf("RunOperations() error = %v, want ErrOperationsFailed", err)
	}

	records := o.Records()
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Err == nil || !strings.Contains(records[0].Err.Error(), "Game is not installed") {
		t.Errorf("Broken: err = %v", records[0].Err)
	}
	if records[1].Err != nil {
		t.Errorf("Fortnite: err = %v", records[1].Err)
	}

	if got := sample(t, o, "legendary_orchestrator_operations_total", "kind=install,outcome=failed"); got != 1 {
		t.Errorf("operations_total{failed} = %v, want 1", got)
	}
	if got := sample(t, o, "legendary_orchestrator_commands_finished_total", "result=failure"); got != 1 {
		t.Errorf("commands_finished_total{failure} = %v, want 1", got)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Errorf("summary does not report the failure:\n%s", out.String())
	}
}

func TestOrchestrator_RunOperations_ContextCancel(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(t))

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := o.RunOperations(ctx, []coordinator.Request{install("Slow"), install("Fortnite")}, false)
	if !errors.Is(err, ErrOperationsFailed) {
		t.Fatalf("RunOperations() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}

	records := o.Records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (queued request dropped)", len(records))
	}
	if !errors.Is(records[0].Err, coordinator.ErrCancelled) {
		t.Errorf("Slow: err = %v, want ErrCancelled", records[0].Err)
	}
	if got := sample(t, o, "legendary_orchestrator_operations_total", "kind=install,outcome=cancelled"); got != 1 {
		t.Errorf("operations_total{cancelled} = %v, want 1", got)
	}
	if n := o.Client().Registry().Len(); n != 0 {
		t.Errorf("registry holds %d commands after shutdown", n)
	}
}

func TestOrchestrator_Preflight(t *testing.T) {
	t.Run("passes", func(t *testing.T) {
		o, out := newTestOrchestrator(t, testConfig(t))
		if err := o.Preflight(t.Context()); err != nil {
			t.Fatalf("Preflight() error = %v\n%s", err, out.String())
		}
		if !strings.Contains(out.String(), "0.20.34") {
			t.Errorf("version not reported:\n%s", out.String())
		}
	})

	t.Run("missing_tool", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LegendaryPath = filepath.Join(t.TempDir(), "missing")
		o, _ := newTestOrchestrator(t, cfg)
		if err := o.Preflight(t.Context()); err == nil {
			t.Error("expected preflight failure")
		}
	})

	t.Run("skipped", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LegendaryPath = filepath.Join(t.TempDir(), "missing")
		cfg.SkipPreflight = true
		o, out := newTestOrchestrator(t, cfg)
		if err := o.Preflight(t.Context()); err != nil {
			t.Errorf("Preflight() error = %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("skipped preflight printed %q", out.String())
		}
	})
}

func TestOrchestrator_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"
	o, _ := newTestOrchestrator(t, cfg)

	if err := o.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := o.RunOperations(t.Context(), []coordinator.Request{install("Fortnite")}, false); err != nil {
		t.Fatalf("RunOperations() error = %v", err)
	}

	families, err := metrics.Scrape(t.Context(), "http://"+o.metricsAddrForDisplay()+"/metrics")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if _, ok := families["legendary_orchestrator_commands_started_total"]; !ok {
		t.Error("scrape is missing commands_started_total")
	}
}

func TestOrchestrator_NoMetricsServer(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(t))
	if err := o.Start(); err != nil {
		t.Errorf("Start() without address = %v", err)
	}
	if addr := o.metricsAddrForDisplay(); addr != "" {
		t.Errorf("metrics address = %q, want empty", addr)
	}
}
