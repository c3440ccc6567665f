package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},        // Default
		{"invalid", slog.LevelInfo}, // Default for unknown
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := parseLevel(tc.input)
			if result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, l := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if !ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = false", l)
		}
	}
	for _, l := range []string{"", "trace", "fatal"} {
		if ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = true", l)
		}
	}
}

func TestNewLoggerTo_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		NewLoggerTo(&buf, "json", "info", false).Info("test message", "key", "value")
		if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"key":"value"`) {
			t.Errorf("Expected JSON format, got: %s", buf.String())
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLoggerTo(&buf, "text", "info", false).Info("test message", "key", "value")
		if !strings.Contains(buf.String(), "key=value") {
			t.Errorf("Expected key=value in output, got: %s", buf.String())
		}
	})

	t.Run("unknown_defaults_to_json", func(t *testing.T) {
		var buf bytes.Buffer
		NewLoggerTo(&buf, "invalid", "info", false).Info("test message")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("Expected JSON default, got: %s", buf.String())
		}
	})
}

func TestNewLoggerTo_VerboseOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "text", "error", true)
	logger.Debug("debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Error("verbose logger should log debug messages regardless of level")
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	t.Run("info_filters_debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "info")

		logger.Debug("debug msg")
		logger.Info("info msg")

		output := buf.String()
		if strings.Contains(output, "debug msg") {
			t.Error("Info level should not log debug messages")
		}
		if !strings.Contains(output, "info msg") {
			t.Error("Info level should log info messages")
		}
	})

	t.Run("error_filters_warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "error")

		logger.Warn("warn msg")
		logger.Error("error msg")

		output := buf.String()
		if strings.Contains(output, "warn msg") {
			t.Error("Error level should not log warn messages")
		}
		if !strings.Contains(output, "error msg") {
			t.Error("Error level should log error messages")
		}
	})
}

func TestSetDefault(t *testing.T) {
	originalDefault := slog.Default()
	defer slog.SetDefault(originalDefault)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))

	slog.Info("from default logger")
	if !strings.Contains(buf.String(), "from default logger") {
		t.Error("SetDefault did not set the default logger")
	}
}

// OutputLogger tests

func line(text string, kind parser.LineKind) parser.Line {
	return parser.Line{
		Origin:   stream.Stderr,
		Text:     text,
		Severity: parser.ClassifySeverity(text),
		Kind:     kind,
	}
}

func TestOutputLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	o := NewOutputLogger(NewLoggerWithWriter(&buf, "text", "debug"), false)

	o.Observe("cmd-1", line("[cli] ERROR: Game is not installed", parser.LineFailure))
	o.Observe("cmd-1", line("[cli] WARNING: Low disk space", parser.LineOther))
	o.Observe("cmd-1", line("[DLManager] INFO: = Progress: 1.00% (1/100), Running for 00:00:01, ETA: 00:01:40", parser.LineProgress))
	o.Observe("cmd-1", line("no level token", parser.LineOther))

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "Game is not installed") {
		t.Errorf("error line not logged at error:\n%s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("warning line not logged at warn:\n%s", out)
	}
	if strings.Contains(out, "Progress") {
		t.Error("progress chatter logged without verbose")
	}
	if strings.Contains(out, "no level token") {
		t.Error("untagged line logged without verbose")
	}
	if !strings.Contains(out, "id=cmd-1") || !strings.Contains(out, "stream=stderr") {
		t.Errorf("line not tagged with id and stream:\n%s", out)
	}
}

func TestOutputLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	o := NewOutputLogger(NewLoggerWithWriter(&buf, "text", "debug"), true)
	o.Observe("x", line("no level token", parser.LineOther))
	if !strings.Contains(buf.String(), "no level token") {
		t.Error("verbose output logger dropped a debug line")
	}
}

func TestOutputLogger_Truncation(t *testing.T) {
	o := NewOutputLogger(slog.New(slog.DiscardHandler), false)
	o.Observe("x", line(strings.Repeat("a", MaxLineLength+10), parser.LineOther))

	lines := o.RecentLines(1)
	if len(lines) != 1 || !strings.HasSuffix(lines[0].Text, "...(truncated)") {
		t.Errorf("long line not truncated")
	}
}

func TestOutputLogger_RecentLines(t *testing.T) {
	o := NewOutputLogger(slog.New(slog.DiscardHandler), false)
	if got := o.RecentLines(5); len(got) != 0 {
		t.Errorf("empty logger returned %d lines", len(got))
	}

	for i := 0; i < MaxBufferedLines+5; i++ {
		id := "a"
		if i%2 == 1 {
			id = "b"
		}
		o.Observe(id, line(fmt.Sprintf("line %d", i), parser.LineOther))
	}

	got := o.RecentLines(3)
	want := []string{
		fmt.Sprintf("line %d", MaxBufferedLines+2),
		fmt.Sprintf("line %d", MaxBufferedLines+3),
		fmt.Sprintf("line %d", MaxBufferedLines+4),
	}
	if len(got) != 3 {
		t.Fatalf("got %d lines", len(got))
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i].Text, want[i])
		}
	}

	if all := o.RecentLines(10 * MaxBufferedLines); len(all) != MaxBufferedLines {
		t.Errorf("buffer holds %d lines, want %d", len(all), MaxBufferedLines)
	}

	forB := o.RecentLinesFor("b", 2)
	if len(forB) != 2 || forB[1].Text != fmt.Sprintf("line %d", MaxBufferedLines+3) {
		t.Errorf("lines for b = %+v", forB)
	}
}

func TestOutputLogger_CountSeverities(t *testing.T) {
	o := NewOutputLogger(slog.New(slog.DiscardHandler), false)
	o.Observe("x", line("[cli] ERROR: one", parser.LineFailure))
	o.Observe("x", line("[cli] ERROR: two", parser.LineFailure))
	o.Observe("x", line("[cli] INFO: three", parser.LineOther))

	counts := o.CountSeverities()
	if counts[parser.SeverityError] != 2 || counts[parser.SeverityInfo] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestOutputLogger_Concurrent(t *testing.T) {
	o := NewOutputLogger(slog.New(slog.DiscardHandler), false)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				o.Observe(fmt.Sprint(g), line("[cli] INFO: x", parser.LineOther))
				o.RecentLines(5)
			}
		}(g)
	}
	wg.Wait()
	if o.CountSeverities()[parser.SeverityInfo] != 800 {
		t.Error("lost lines under concurrency")
	}
}
