// Package process spawns external commands and manages their lifecycle.
//
// Every spawned child runs in its own process group with its three standard
// pipes connected to the parent. Output is drained concurrently through the
// stream package, and the child is always reaped before a Handle reports
// completion, so no invocation leaves a zombie behind.
package process

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// Command describes one child process to spawn.
type Command struct {
	// Path is the executable. It is not resolved through a shell.
	Path string

	// Args are passed verbatim, without shell interpretation.
	Args []string

	// Env REPLACES the inherited environment when non-nil; the child sees
	// exactly these variables and nothing else. Leave it nil to inherit the
	// parent's environment unchanged, or build it with MergeEnv to inherit
	// and add. An empty non-nil slice starts the child with no environment.
	Env []string

	// Dir is the working directory. Empty means the parent's.
	Dir string

	// Stdin is a literal payload for the child's stdin. With Trigger set it
	// is held back until the trigger matches, otherwise written at start.
	Stdin   string
	Trigger *stream.Trigger

	// Reply answers interactive prompts chunk by chunk.
	Reply stream.ReplyFunc

	// OnChunk is called synchronously for every chunk, before the chunk is
	// delivered on Handle.Chunks.
	OnChunk func(stream.Chunk)
}

// String returns a shell-like rendering of the command, for logs only.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

func (c Command) wantsStdin() bool {
	return c.Stdin != "" || c.Reply != nil
}

// Result is the accumulated output of one finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int

	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the child ran.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Err returns an *ExitError when the child exited non-zero, nil otherwise.
func (r *Result) Err() error {
	if r == nil || r.ExitCode == 0 {
		return nil
	}
	return &ExitError{Code: r.ExitCode}
}

// MergeEnv returns base with extra applied on top. Keys in extra override
// keys of the same name in base; added keys are appended in sorted order.
//
// Use MergeEnv(os.Environ(), extra) to inherit the parent environment and add
// to it, since Command.Env otherwise replaces the environment wholesale.
func MergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := extra[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+v)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// ErrStopped is returned by Handle.Wait when the child was stopped through
// Cancel, Stop or context cancellation.
var ErrStopped = errors.New("process stopped")

// LaunchError reports that a child could not be spawned at all.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError reports a non-zero exit status. It is a weak failure signal for
// tools that report failures in their output rather than their exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
