package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MythicApp/Mythic-sub001/internal/coordinator"
	"github.com/MythicApp/Mythic-sub001/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderView() string {
	sections := []string{
		m.renderHeader(),
		m.renderCurrent(),
		m.renderQueue(),
	}
	if len(m.finished) > 0 {
		sections = append(sections, m.renderFinished())
	}
	if m.showLog && len(m.recent) > 0 {
		sections = append(sections, m.renderLog())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	state := mutedStyle.Render("● " + m.state.String())
	if m.state == coordinator.StateRunning {
		state = statusInfo.Render("● " + m.state.String())
	}

	header := fmt.Sprintf(
		" legendary-orchestrator │ %s │ Queued: %d │ Elapsed: %s ",
		state,
		len(m.queue),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Current operation
// =============================================================================

func (m Model) renderCurrent() string {
	if m.current == nil {
		return boxStyle.Render(mutedStyle.Render("No operation running"))
	}

	snap := m.progress
	lines := []string{
		sectionHeaderStyle.Render(m.current.String()),
		RenderProgressBar(snap.Percentage()/100, m.barWidth()),
	}

	if p := snap.Progress; p != nil {
		lines = append(lines,
			RenderKeyValue("Chunks", fmt.Sprintf("%d / %d", p.Completed, p.Total)),
			RenderKeyValue("Elapsed", formatDuration(p.Elapsed)),
			RenderKeyValue("ETA", formatDuration(p.ETA)),
		)
	} else {
		lines = append(lines, dimStyle.Render("waiting for progress..."))
	}
	if t := snap.Transfer; t != nil {
		lines = append(lines, RenderKeyValue("Downloaded",
			fmt.Sprintf("%s  written %s", stats.FormatBytes(t.Downloaded), stats.FormatBytes(t.Written))))
	}
	if r := snap.DownloadRate; r != nil {
		lines = append(lines, RenderKeyValue("Download",
			fmt.Sprintf("%s raw, %s decompressed", stats.FormatByteRate(r.Raw), stats.FormatByteRate(r.Decompressed))))
	}
	if d := snap.DiskRate; d != nil {
		lines = append(lines, RenderKeyValue("Disk",
			fmt.Sprintf("%s write, %s read", stats.FormatByteRate(d.Write), stats.FormatByteRate(d.Read))))
	}
	if c := snap.Cache; c != nil {
		lines = append(lines, RenderKeyValue("Cache",
			fmt.Sprintf("%s, %d tasks", stats.FormatBytes(c.Usage), c.ActiveTasks)))
	}
	if v := snap.Verification; v != nil {
		lines = append(lines, RenderKeyValue("Verifying",
			fmt.Sprintf("%d / %d files (%.1f%%) at %s", v.Verified, v.Total, v.Percentage, stats.FormatByteRate(v.Rate))))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) barWidth() int {
	w := m.width - 16
	if w > 60 {
		w = 60
	}
	return w
}

// =============================================================================
// Queue and finished operations
// =============================================================================

func (m Model) renderQueue() string {
	lines := []string{sectionHeaderStyle.Render("Queue")}
	if len(m.queue) == 0 {
		lines = append(lines, dimStyle.Render("  (empty)"))
	}
	for i, req := range m.queue {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, req.String()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFinished() string {
	lines := []string{sectionHeaderStyle.Render("Finished")}
	for i := len(m.finished) - 1; i >= 0; i-- {
		o := m.finished[i]
		label := o.Label()
		line := fmt.Sprintf("  %s %-30s %s",
			GetOutcomeStyle(label).Render(fmt.Sprintf("%-9s", label)),
			o.Request.String(),
			mutedStyle.Render(stats.FormatDuration(o.Duration())),
		)
		if label == "failed" {
			line += "\n    " + statusError.Render(truncate(o.Err.Error(), m.width-6))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Output log
// =============================================================================

func (m Model) renderLog() string {
	lines := []string{sectionHeaderStyle.Render("Output")}
	for _, l := range m.recent {
		text := truncate(l.Text, m.width-4)
		lines = append(lines, "  "+GetSeverityStyle(l.Level).Render(text))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	parts := []string{"q: quit", "c: cancel current", "l: toggle output"}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics: http://"+m.metricsAddr+"/metrics")
	}
	footer := footerStyle.Render(strings.Join(parts, " │ "))
	if m.lastError != "" {
		footer += "\n" + statusWarning.Render(m.lastError)
	}
	return footer
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
