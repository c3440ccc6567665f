// Package stream drains a child process's stdout and stderr concurrently and
// mediates replies written back to its stdin.
package stream

import "time"

// Origin identifies which output pipe a chunk was read from.
type Origin int

const (
	// Stdout is the child's standard output.
	Stdout Origin = iota

	// Stderr is the child's standard error.
	Stderr
)

// String returns "stdout" or "stderr".
func (o Origin) String() string {
	switch o {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Chunk is one burst of bytes read from a single pipe.
// Chunks are not line aligned: a line may be split across several chunks and
// one chunk may carry several lines.
type Chunk struct {
	Origin Origin
	Text   string
	Time   time.Time
}

// Trigger describes the output that must be observed before a stdin payload
// is written.
type Trigger struct {
	Origin    Origin
	Substring string
}

// ReplyFunc inspects a chunk and optionally returns text to write to the
// child's stdin. Returning ok=false writes nothing.
type ReplyFunc func(c Chunk) (reply string, ok bool)
