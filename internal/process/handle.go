package process

import (
	"iter"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// Handle is a running child process. It owns the child's pipes for the
// lifetime of the invocation and releases them when the child is reaped.
//
// Chunks must be drained (or the handle cancelled) for the child to make
// progress: delivery is unbuffered beyond a small window, which gives the
// consumer backpressure over the child.
type Handle struct {
	id        string
	pid       int
	cmd       *exec.Cmd
	mux       *stream.Multiplexer
	logger    *slog.Logger
	policy    StopPolicy
	startTime time.Time

	chunks   chan stream.Chunk
	detached chan struct{} // closed when the consumer stops receiving
	done     chan struct{} // closed after the child has been reaped

	result  *Result
	stopped bool

	cancelOnce sync.Once
	stopDone   chan struct{}
	stage      atomic.Int32
}

// ID returns the identifier the handle was started with.
func (h *Handle) ID() string {
	return h.id
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.pid
}

// StartTime returns when the child was spawned.
func (h *Handle) StartTime() time.Time {
	return h.startTime
}

// Chunks returns the live output. The channel is closed once both output
// pipes reach EOF or the handle is cancelled.
func (h *Handle) Chunks() <-chan stream.Chunk {
	return h.chunks
}

// All returns the live output as an iterator. Breaking out of the loop early
// cancels the child.
func (h *Handle) All() iter.Seq[stream.Chunk] {
	return func(yield func(stream.Chunk) bool) {
		for c := range h.chunks {
			if !yield(c) {
				h.Cancel()
				return
			}
		}
	}
}

// Done is closed after the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the child has been reaped and returns its accumulated
// output. The result is always non-nil. The error is ErrStopped when the
// stop escalation ended the child: a stage was entered before the output
// closed, or a stop signal is what terminated it. A child that exited on its
// own before a late Cancel reports its own status. A non-zero exit is
// reported only through Result.ExitCode and Result.Err.
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	if h.stopped {
		return h.result, ErrStopped
	}
	return h.result, nil
}

// Cancel starts the stop escalation and returns immediately. Output that has
// not been consumed yet is still accumulated into the Result but no longer
// delivered on Chunks. Safe to call multiple times.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.detached)
		go h.escalate()
	})
}

// Stop cancels the child and blocks until it has been reaped. It returns the
// stage at which the child went away.
func (h *Handle) Stop() Stage {
	h.Cancel()
	<-h.stopDone
	<-h.done
	return h.StopStage()
}

// StopStage returns the last stop stage entered, or StageNone.
func (h *Handle) StopStage() Stage {
	return Stage(h.stage.Load())
}

// Running reports whether the child has not been reaped yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// pump forwards chunks to the consumer, accumulates the per-stream output and
// reaps the child once both pipes are drained.
func (h *Handle) pump(src <-chan stream.Chunk, onChunk func(stream.Chunk)) {
	var stdout, stderr strings.Builder
	delivering := true

	for c := range src {
		if c.Origin == stream.Stdout {
			stdout.WriteString(c.Text)
		} else {
			stderr.WriteString(c.Text)
		}
		if onChunk != nil {
			onChunk(c)
		}
		if !delivering {
			continue
		}
		select {
		case h.chunks <- c:
		case <-h.detached:
			delivering = false
		}
	}
	stageAtEOF := h.StopStage()
	close(h.chunks)

	waitErr := h.cmd.Wait()
	h.stopped = stageAtEOF != StageNone ||
		(h.StopStage() != StageNone && signaled(waitErr))
	h.result = &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  extractExitCode(waitErr),
		StartTime: h.startTime,
		EndTime:   time.Now(),
	}

	h.logger.Info("command_exited",
		"id", h.id,
		"pid", h.pid,
		"exit_code", h.result.ExitCode,
		"uptime", h.result.Duration().String(),
		"stop_stage", h.StopStage().String(),
	)
	close(h.done)
}

// StdinWrites returns how many payloads or replies reached the child's stdin.
func (h *Handle) StdinWrites() int64 {
	return h.mux.StdinWrites()
}
