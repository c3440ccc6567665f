package stats

import (
	"fmt"
	"strings"
	"time"
)

// OperationRecord is one finished operation as it appears in the summary.
type OperationRecord struct {
	Game     string
	Kind     string
	Err      error
	Duration time.Duration
	Download RateSummary
	Disk     RateSummary
}

// Outcome returns "ok", "cancelled" or "failed".
func (r OperationRecord) Outcome(cancelled bool) string {
	switch {
	case r.Err == nil:
		return "ok"
	case cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// SummaryConfig holds the run-wide figures of the summary.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Cancelled reports whether a record's error means cancellation.
	Cancelled func(err error) bool
}

// FormatRunSummary formats finished operations for display at exit.
func FormatRunSummary(records []OperationRecord, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                       legendary-orchestrator Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Operations:             %d\n\n", len(records))

	if len(records) > 0 {
		fmt.Fprintf(&b, "  %-24s %-8s %-10s %10s %14s %14s\n",
			"Game", "Kind", "Outcome", "Duration", "Download p50", "Disk p50")
		b.WriteString("  " + strings.Repeat("─", 85) + "\n")

		var failed int
		for _, r := range records {
			cancelled := r.Err != nil && cfg.Cancelled != nil && cfg.Cancelled(r.Err)
			outcome := r.Outcome(cancelled)
			if outcome == "failed" {
				failed++
			}
			fmt.Fprintf(&b, "  %-24s %-8s %-10s %10s %14s %14s\n",
				truncate(r.Game, 24),
				r.Kind,
				outcome,
				FormatDuration(r.Duration),
				FormatByteRate(r.Download.P50),
				FormatByteRate(r.Disk.P50),
			)
		}

		if failed > 0 {
			b.WriteString("\nFailures:\n")
			for _, r := range records {
				cancelled := r.Err != nil && cfg.Cancelled != nil && cfg.Cancelled(r.Err)
				if r.Err != nil && !cancelled {
					fmt.Fprintf(&b, "  %s: %v\n", r.Game, r.Err)
				}
			}
		}
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "\nMetrics: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatBytes formats bytes with the binary units the tool itself prints.
func FormatBytes(n float64) string {
	switch {
	case n >= 1<<40:
		return fmt.Sprintf("%.2f TiB", n/(1<<40))
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", n/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", n/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", n/(1<<10))
	default:
		return fmt.Sprintf("%.0f B", n)
	}
}

// FormatByteRate formats a bytes-per-second rate, or "-" for zero.
func FormatByteRate(n float64) string {
	if n <= 0 {
		return "-"
	}
	return FormatBytes(n) + "/s"
}
