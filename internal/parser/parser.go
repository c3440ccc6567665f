// Package parser turns the external tool's free-form log output into typed
// progress records and typed outcomes.
//
// The tool has no structured progress channel, so everything here is regular
// expressions over text. Lines that match nothing are normal and change no
// state. Failure markers, on the other hand, are authoritative: the tool may
// exit 0 after printing one, so callers must consult Verdict rather than the
// exit code alone.
//
// If the tool's output format changes, this package is the only one that
// should need to follow.
package parser

import (
	"errors"
	"sync"

	"github.com/MythicApp/Mythic-sub001/internal/process"
	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// LineKind says which matcher, if any, recognised a line.
type LineKind int

const (
	LineOther LineKind = iota
	LineProgress
	LineTransfer
	LineCache
	LineDownloadRate
	LineDiskRate
	LineVerification
	LineFailure
	LineSuccess
)

// String returns a short name for the kind.
func (k LineKind) String() string {
	switch k {
	case LineProgress:
		return "progress"
	case LineTransfer:
		return "transfer"
	case LineCache:
		return "cache"
	case LineDownloadRate:
		return "download_rate"
	case LineDiskRate:
		return "disk_rate"
	case LineVerification:
		return "verification"
	case LineFailure:
		return "failure"
	case LineSuccess:
		return "success"
	default:
		return "other"
	}
}

// Line is one complete output line after parsing.
type Line struct {
	Origin   stream.Origin
	Text     string
	Severity Severity
	Kind     LineKind
}

// OperationFailure is a failure the tool reported in its output.
type OperationFailure struct {
	Message string
}

func (e *OperationFailure) Error() string {
	return "operation failed: " + e.Message
}

// Config holds optional overrides for a Parser.
type Config struct {
	// Status receives parsed progress. A fresh one is created when nil.
	Status *Status

	// FailureMarkers and SuccessMarkers default to DefaultFailureMarkers and
	// DefaultSuccessMarkers.
	FailureMarkers []Marker
	SuccessMarkers []Marker
}

// Parser consumes one invocation's output. Feed may be called from the
// goroutine delivering chunks while Failure, Succeeded and Status are read
// from others.
type Parser struct {
	status         *Status
	failureMarkers []Marker
	successMarkers []Marker

	mu      sync.Mutex
	buffers [2]LineBuffer
	failure *OperationFailure
	success string
	lines   int64
	matched int64
}

// New creates a Parser.
func New(cfg Config) *Parser {
	status := cfg.Status
	if status == nil {
		status = NewStatus()
	}
	failures := cfg.FailureMarkers
	if failures == nil {
		failures = DefaultFailureMarkers()
	}
	successes := cfg.SuccessMarkers
	if successes == nil {
		successes = DefaultSuccessMarkers()
	}
	return &Parser{
		status:         status,
		failureMarkers: failures,
		successMarkers: successes,
	}
}

// Status returns the progress record this parser writes to.
func (p *Parser) Status() *Status {
	return p.status
}

// Feed splits c into lines, parses every completed line and returns them.
// A trailing partial line is kept until a later chunk of the same origin
// completes it, or until Flush.
func (p *Parser) Feed(c stream.Chunk) []Line {
	p.mu.Lock()
	texts := p.buffers[c.Origin].Feed(c.Text)
	p.mu.Unlock()

	out := make([]Line, 0, len(texts))
	for _, t := range texts {
		out = append(out, p.ParseLine(c.Origin, t))
	}
	return out
}

// Flush parses whatever partial lines remain. Call it once the output has
// ended.
func (p *Parser) Flush() []Line {
	var out []Line
	for _, origin := range []stream.Origin{stream.Stdout, stream.Stderr} {
		p.mu.Lock()
		t, ok := p.buffers[origin].Flush()
		p.mu.Unlock()
		if ok {
			out = append(out, p.ParseLine(origin, t))
		}
	}
	return out
}

// ParseLine parses one complete line and applies it to the status.
func (p *Parser) ParseLine(origin stream.Origin, text string) Line {
	line := Line{
		Origin:   origin,
		Text:     text,
		Severity: ClassifySeverity(text),
		Kind:     p.apply(text),
	}

	p.mu.Lock()
	p.lines++
	if line.Kind != LineOther {
		p.matched++
	}
	p.mu.Unlock()

	return line
}

// apply runs the matchers in order and records the first match.
func (p *Parser) apply(text string) LineKind {
	for _, m := range p.failureMarkers {
		if msg, ok := m.match(text); ok {
			p.mu.Lock()
			if p.failure == nil {
				p.failure = &OperationFailure{Message: msg}
			}
			p.mu.Unlock()
			return LineFailure
		}
	}
	for _, m := range p.successMarkers {
		if _, ok := m.match(text); ok {
			p.mu.Lock()
			if p.success == "" {
				p.success = m.Name
			}
			p.mu.Unlock()
			return LineSuccess
		}
	}

	if v, ok := MatchProgress(text); ok {
		p.status.SetProgress(v)
		return LineProgress
	}
	if v, ok := MatchTransfer(text); ok {
		p.status.SetTransfer(v)
		return LineTransfer
	}
	if v, ok := MatchCache(text); ok {
		p.status.SetCache(v)
		return LineCache
	}
	if v, ok := MatchDownloadRate(text); ok {
		p.status.SetDownloadRate(v)
		return LineDownloadRate
	}
	if v, ok := MatchDiskRate(text); ok {
		p.status.SetDiskRate(v)
		return LineDiskRate
	}
	if v, ok := MatchVerification(text); ok {
		p.status.SetVerification(v)
		return LineVerification
	}
	return LineOther
}

// Failure returns the first failure marker seen, or nil.
func (p *Parser) Failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure == nil {
		return nil
	}
	return p.failure
}

// Succeeded reports whether a success marker was seen, and which one.
func (p *Parser) Succeeded() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.success, p.success != ""
}

// Stats returns (lines parsed, lines matched by any matcher).
func (p *Parser) Stats() (lines, matched int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines, p.matched
}

// Verdict decides the outcome of the invocation once it has exited.
//
// Precedence, strongest first: a failure marker (*OperationFailure), a
// success marker (nil), a non-zero exit code (*process.ExitError), success.
func (p *Parser) Verdict(exitCode int) error {
	if err := p.Failure(); err != nil {
		return err
	}
	if _, ok := p.Succeeded(); ok {
		return nil
	}
	if exitCode != 0 {
		return &process.ExitError{Code: exitCode}
	}
	return nil
}

// IsOperationFailure reports whether err carries an *OperationFailure and
// returns it.
func IsOperationFailure(err error) (*OperationFailure, bool) {
	var f *OperationFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
