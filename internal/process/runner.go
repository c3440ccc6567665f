package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// Outcome is delivered by ExecuteAsync.
type Outcome struct {
	Result *Result
	Err    error
}

// Runner spawns child processes. It is safe for concurrent use; each call
// spawns exactly one child.
type Runner struct {
	logger *slog.Logger
	policy StopPolicy
}

// NewRunner creates a Runner. A zero StopPolicy uses DefaultStopPolicy.
func NewRunner(logger *slog.Logger, policy StopPolicy) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger,
		policy: policy.withDefaults(),
	}
}

// Start spawns cmd and returns its handle. id labels the handle in logs and
// may be empty.
//
// Cancelling ctx starts the stop escalation; it does not abandon the child.
// A child that cannot be spawned yields a *LaunchError.
func (r *Runner) Start(ctx context.Context, id string, cmd Command) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cmd.Path == "" {
		return nil, &LaunchError{Path: cmd.Path, Err: errors.New("empty executable path")}
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir

	// Own process group so the stop escalation reaches helpers the child
	// spawns, and a terminal Ctrl-C aimed at us is not delivered twice.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Path: cmd.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Path: cmd.Path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	var stdin io.WriteCloser
	if cmd.wantsStdin() {
		stdin, err = c.StdinPipe()
		if err != nil {
			return nil, &LaunchError{Path: cmd.Path, Err: fmt.Errorf("stdin pipe: %w", err)}
		}
	}

	startTime := time.Now()
	if err := c.Start(); err != nil {
		r.logger.Error("command_launch_failed",
			"id", id,
			"path", cmd.Path,
			"error", err,
		)
		return nil, &LaunchError{Path: cmd.Path, Err: err}
	}

	mux := stream.New(stream.Config{
		Stdout:  stdout,
		Stderr:  stderr,
		Stdin:   stdin,
		Payload: cmd.Stdin,
		Trigger: cmd.Trigger,
		Reply:   cmd.Reply,
		Logger:  r.logger.With("id", id),
	})

	h := &Handle{
		id:        id,
		pid:       c.Process.Pid,
		cmd:       c,
		mux:       mux,
		logger:    r.logger,
		policy:    r.policy,
		startTime: startTime,
		chunks:    make(chan stream.Chunk, 16),
		detached:  make(chan struct{}),
		done:      make(chan struct{}),
		stopDone:  make(chan struct{}),
	}

	r.logger.Info("command_started",
		"id", id,
		"pid", h.pid,
		"command", cmd.String(),
	)

	go h.pump(mux.Run(), cmd.OnChunk)
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()

	return h, nil
}

// Stream spawns cmd and returns its handle for live consumption through
// Handle.Chunks or Handle.All. The sequence ends when the child closes both
// output pipes; issue a new call to run the command again.
func (r *Runner) Stream(ctx context.Context, id string, cmd Command) (*Handle, error) {
	return r.Start(ctx, id, cmd)
}

// Execute runs cmd to completion and returns its output. Both output pipes
// are drained concurrently, but everything is held in memory, so reserve
// this for short, low-output commands.
func (r *Runner) Execute(ctx context.Context, cmd Command) (*Result, error) {
	h, err := r.Start(ctx, "", cmd)
	if err != nil {
		return nil, err
	}
	for range h.Chunks() {
	}
	return h.Wait()
}

// ExecuteAsync runs cmd on its own goroutine. The returned channel receives
// exactly one Outcome and is then closed.
func (r *Runner) ExecuteAsync(ctx context.Context, cmd Command) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := r.Execute(ctx, cmd)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
