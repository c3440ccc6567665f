// Package metrics provides Prometheus metrics for legendary-orchestrator.
//
// Metrics cover three layers:
//   - Commands: every invocation of the tool, by verdict
//   - Operations: queued install/update/repair requests and their progress
//   - Cache: hits, misses and background refresh failures
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/process"
)

const namespace = "legendary_orchestrator"

// Command results, used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure" // failure marker in the output
	ResultExitCode    = "nonzero_exit"
	ResultStopped     = "stopped"
	ResultLaunchError = "launch_error"
)

// Collector manages the orchestrator's Prometheus metrics. Each Collector owns
// its metric values, so several can live on separate registries.
type Collector struct {
	commandsStarted  prometheus.Counter
	commandsExited   *prometheus.CounterVec
	commandDuration  prometheus.Histogram
	commandsRunning  prometheus.Gauge
	outputLines      *prometheus.CounterVec
	operationsTotal  *prometheus.CounterVec
	operationSeconds prometheus.Histogram
	queueLength      prometheus.Gauge
	progressPercent  prometheus.Gauge
	downloadRate     prometheus.Gauge
	diskWriteRate    prometheus.Gauge
	cacheRequests    *prometheus.CounterVec
	cacheRefreshErrs prometheus.Counter

	startTime time.Time

	// For summary generation
	mu          sync.Mutex
	running     int
	peakRunning int
	totalStarts int64
	results     map[string]int64
	outcomes    map[string]int64
}

// NewCollector creates a collector registered on registry.
func NewCollector(registry prometheus.Registerer) *Collector {
	c := &Collector{
		commandsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_started_total",
			Help:      "Tool invocations spawned",
		}),
		commandsExited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_finished_total",
			Help:      "Tool invocations finished, by verdict",
		}, []string{"result"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall-clock run time of tool invocations",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 10800},
		}),
		commandsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_running",
			Help:      "Invocations currently in the command registry",
		}),
		outputLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Output lines read from the tool, by embedded severity",
		}, []string{"severity"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished install operations, by kind and outcome",
		}, []string{"kind", "outcome"}),
		operationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time install operations held the current slot",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_queued",
			Help:      "Operations waiting behind the current one",
		}),
		progressPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operation_progress_percent",
			Help:      "Completion percentage of the current operation",
		}),
		downloadRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_bytes_per_second",
			Help:      "Last reported raw download rate of the current operation",
		}),
		diskWriteRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_write_bytes_per_second",
			Help:      "Last reported disk write rate of the current operation",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cached invocations, by hit or miss",
		}, []string{"result"}),
		cacheRefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refresh_failures_total",
			Help:      "Background cache refreshes that failed and kept the old entry",
		}),
		startTime: time.Now(),
		results:   make(map[string]int64),
		outcomes:  make(map[string]int64),
	}

	registry.MustRegister(
		c.commandsStarted,
		c.commandsExited,
		c.commandDuration,
		c.commandsRunning,
		c.outputLines,
		c.operationsTotal,
		c.operationSeconds,
		c.queueLength,
		c.progressPercent,
		c.downloadRate,
		c.diskWriteRate,
		c.cacheRequests,
		c.cacheRefreshErrs,
	)
	return c
}

// =============================================================================
// Command events (signatures match legendary.Hooks)
// =============================================================================

// CommandStarted records a spawned invocation.
func (c *Collector) CommandStarted(id string, args []string, pid int) {
	c.commandsStarted.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.running++
	if c.running > c.peakRunning {
		c.peakRunning = c.running
	}
	n := c.running
	c.mu.Unlock()
	c.commandsRunning.Set(float64(n))
}

// CommandFinished records the verdict of an invocation. res is nil when the
// tool could not be started.
func (c *Collector) CommandFinished(id string, args []string, res *process.Result, err error) {
	result := Classify(err)
	c.commandsExited.WithLabelValues(result).Inc()

	c.mu.Lock()
	c.results[result]++
	if res != nil {
		c.running--
	}
	n := c.running
	c.mu.Unlock()

	if res != nil {
		c.commandsRunning.Set(float64(n))
		c.commandDuration.Observe(res.Duration().Seconds())
	}
}

// OutputLine counts one line of tool output. Its signature matches
// legendary.Hooks.OnLine.
func (c *Collector) OutputLine(id string, l parser.Line) {
	c.outputLines.WithLabelValues(l.Severity.String()).Inc()
}

// CacheLookup records a cached invocation.
func (c *Collector) CacheLookup(hit bool) {
	if hit {
		c.cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	c.cacheRequests.WithLabelValues("miss").Inc()
}

// CacheRefreshed records the end of a background refresh.
func (c *Collector) CacheRefreshed(sig string, err error) {
	if err != nil {
		c.cacheRefreshErrs.Inc()
	}
}

// Classify maps an invocation error to a result label.
func Classify(err error) string {
	var launch *process.LaunchError
	var exit *process.ExitError
	var opFail *parser.OperationFailure
	switch {
	case err == nil:
		return ResultSuccess
	case errors.As(err, &opFail):
		return ResultFailure
	case errors.Is(err, process.ErrStopped):
		return ResultStopped
	case errors.As(err, &launch):
		return ResultLaunchError
	case errors.As(err, &exit):
		return ResultExitCode
	default:
		return ResultFailure
	}
}

// =============================================================================
// Operation events
// =============================================================================

// OperationFinished records a finished operation. outcome is "succeeded",
// "failed" or "cancelled".
func (c *Collector) OperationFinished(kind, outcome string, d time.Duration) {
	c.operationsTotal.WithLabelValues(kind, outcome).Inc()
	c.operationSeconds.Observe(d.Seconds())
	c.progressPercent.Set(0)
	c.downloadRate.Set(0)
	c.diskWriteRate.Set(0)

	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

// SetProgress publishes the current operation's progress record.
func (c *Collector) SetProgress(snap parser.Snapshot) {
	if snap.Progress != nil {
		c.progressPercent.Set(snap.Progress.Percentage)
	}
	if snap.DownloadRate != nil {
		c.downloadRate.Set(snap.DownloadRate.Raw)
	}
	if snap.DiskRate != nil {
		c.diskWriteRate.Set(snap.DiskRate.Write)
	}
}

// SetQueueLength updates the pending operation count.
func (c *Collector) SetQueueLength(n int) {
	c.queueLength.Set(float64(n))
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration    time.Duration
	TotalStarts int64
	PeakRunning int
	Results     map[string]int64
	Outcomes    map[string]int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:    time.Since(c.startTime),
		TotalStarts: c.totalStarts,
		PeakRunning: c.peakRunning,
		Results:     make(map[string]int64, len(c.results)),
		Outcomes:    make(map[string]int64, len(c.outcomes)),
	}
	for k, v := range c.results {
		s.Results[k] = v
	}
	for k, v := range c.outcomes {
		s.Outcomes[k] = v
	}
	return s
}
