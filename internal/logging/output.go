package logging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MythicApp/Mythic-sub001/internal/parser"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent output lines kept.
	MaxBufferedLines = 200
)

// OutputLine is one buffered line of child output.
type OutputLine struct {
	ID     string
	Origin string
	Text   string
	Level  parser.Severity
}

// OutputLogger logs the output of every invocation and keeps the most recent
// lines for failure reports and the dashboard.
//
// Lines are logged at the level the tool itself printed. Progress chatter
// (lines a matcher recognised) goes to debug unless verbose is set, so the
// default log carries only what is worth reading.
type OutputLogger struct {
	logger  *slog.Logger
	verbose bool

	mu     sync.Mutex
	buffer []OutputLine
	bufIdx int
	filled bool
	counts map[parser.Severity]int
}

// NewOutputLogger creates an output logger.
func NewOutputLogger(logger *slog.Logger, verbose bool) *OutputLogger {
	return &OutputLogger{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]OutputLine, MaxBufferedLines),
		counts:  make(map[parser.Severity]int),
	}
}

// Observe records one parsed line of invocation id. Its signature matches
// legendary.Hooks.OnLine.
func (o *OutputLogger) Observe(id string, l parser.Line) {
	text := l.Text
	if len(text) > MaxLineLength {
		text = text[:MaxLineLength] + "...(truncated)"
	}
	line := OutputLine{ID: id, Origin: l.Origin.String(), Text: text, Level: l.Severity}

	o.mu.Lock()
	o.buffer[o.bufIdx] = line
	o.bufIdx = (o.bufIdx + 1) % MaxBufferedLines
	if o.bufIdx == 0 {
		o.filled = true
	}
	o.counts[l.Severity]++
	o.mu.Unlock()

	level := SlogLevel(l.Severity)
	if l.Kind != parser.LineOther && l.Kind != parser.LineFailure && l.Kind != parser.LineSuccess {
		level = slog.LevelDebug
	}
	if !o.verbose && level == slog.LevelDebug {
		return
	}
	o.logger.Log(context.Background(), level, "command_output",
		"id", id,
		"stream", line.Origin,
		"kind", l.Kind.String(),
		"line", text,
	)
}

// SlogLevel maps a tool severity to a log level. Lines without a level token
// are debug output.
func SlogLevel(s parser.Severity) slog.Level {
	switch s {
	case parser.SeverityInfo:
		return slog.LevelInfo
	case parser.SeverityWarning:
		return slog.LevelWarn
	case parser.SeverityError, parser.SeverityCritical:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (o *OutputLogger) RecentLines(n int) []OutputLine {
	return o.recent(n, func(OutputLine) bool { return true })
}

// RecentLinesFor returns up to n of the most recent lines of invocation id.
func (o *OutputLogger) RecentLinesFor(id string, n int) []OutputLine {
	return o.recent(n, func(l OutputLine) bool { return l.ID == id })
}

func (o *OutputLogger) recent(n int, keep func(OutputLine) bool) []OutputLine {
	o.mu.Lock()
	defer o.mu.Unlock()

	size := o.bufIdx
	if o.filled {
		size = MaxBufferedLines
	}
	if n > size {
		n = size
	}

	// Walk backwards from the newest entry.
	var lines []OutputLine
	for i := 1; i <= size && len(lines) < n; i++ {
		idx := (o.bufIdx - i + MaxBufferedLines) % MaxBufferedLines
		if keep(o.buffer[idx]) {
			lines = append(lines, o.buffer[idx])
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

// CountSeverities returns how many lines carried each severity.
func (o *OutputLogger) CountSeverities() map[parser.Severity]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[parser.Severity]int, len(o.counts))
	for k, v := range o.counts {
		out[k] = v
	}
	return out
}
