// Package coordinator serialises install, update and repair operations.
//
// Requests queue FIFO and exactly one runs at a time: the tool and the
// filesystem underneath it are not safe for concurrent mutating runs against
// one config directory. Every terminal outcome (success, failure or
// cancellation) is reported through OnComplete before the coordinator goes
// back to Idle, and a failed operation never blocks the queue.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/stats"
)

// Executor runs the pipeline of one operation.
type Executor interface {
	// Execute runs req to completion, writing progress to status. The
	// returned error is the operation's verdict.
	Execute(ctx context.Context, req Request, status *parser.Status, onLine func(parser.Line)) error

	// Cancel stops the command running req.
	Cancel(req Request) error
}

// Outcome is the terminal result of one operation.
type Outcome struct {
	Request  Request
	Err      error
	Started  time.Time
	Finished time.Time
	Final    parser.Snapshot
	Download stats.RateSummary
	Disk     stats.RateSummary
}

// Duration returns how long the operation held the current slot.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Cancelled reports whether the operation was cancelled.
func (o Outcome) Cancelled() bool {
	return errors.Is(o.Err, ErrCancelled)
}

// Label returns "succeeded", "failed" or "cancelled".
func (o Outcome) Label() string {
	switch {
	case o.Err == nil:
		return "succeeded"
	case o.Cancelled():
		return "cancelled"
	default:
		return "failed"
	}
}

// Callbacks contains optional callbacks for coordinator events. They run on
// a single goroutine in event order and may call back into the coordinator,
// except for Shutdown.
type Callbacks struct {
	// OnStateChange is called for every state transition.
	OnStateChange func(from, to State)

	// OnStart is called when a request enters the current slot.
	OnStart func(req Request)

	// OnProgress is called after each line that changed the progress record.
	OnProgress func(req Request, snap parser.Snapshot)

	// OnLine is called for every output line of the current operation.
	OnLine func(req Request, line parser.Line)

	// OnComplete is called once per operation, before the transition to Idle.
	OnComplete func(o Outcome)
}

// Config holds configuration for the Coordinator.
type Config struct {
	Executor  Executor
	Logger    *slog.Logger
	Callbacks Callbacks
}

type operation struct {
	req     Request
	status  *parser.Status
	rates   *stats.RateTracker
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
}

// Coordinator owns the operation queue and the single current slot.
type Coordinator struct {
	exec      Executor
	logger    *slog.Logger
	callbacks Callbacks
	notify    *notifier

	mu         sync.Mutex
	state      State
	queue      []Request
	current    *operation
	closed     bool
	idle       chan struct{}
	idleClosed bool

	wg sync.WaitGroup
}

// New creates an idle coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		exec:      cfg.Executor,
		logger:    logger,
		callbacks: cfg.Callbacks,
		notify:    newNotifier(),
		state:     StateIdle,
		idle:      make(chan struct{}),
	}
	c.signalIdleLocked()
	return c
}

// Enqueue appends req to the queue and starts it if the coordinator is idle.
// A request equal to one queued or running is rejected with
// *DuplicateOperationError.
func (c *Coordinator) Enqueue(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrShutdown
	}
	if c.current != nil && c.current.req.Equal(req) {
		return &DuplicateOperationError{Request: req, Running: true}
	}
	for _, q := range c.queue {
		if q.Equal(req) {
			return &DuplicateOperationError{Request: req}
		}
	}

	c.queue = append(c.queue, req)
	if c.idleClosed {
		c.idle = make(chan struct{})
		c.idleClosed = false
	}
	c.logger.Info("operation_enqueued",
		"game", req.Game,
		"kind", req.Kind.String(),
		"queue_len", len(c.queue),
	)

	c.advanceLocked()
	return nil
}

// Remove drops a queued request. It does not touch the running operation.
func (c *Coordinator) Remove(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q.Equal(req) {
			c.queue = append(c.queue[:i:i], c.queue[i+1:]...)
			c.logger.Info("operation_removed", "game", req.Game, "kind", req.Kind.String())
			c.signalIdleLocked()
			return true
		}
	}
	return false
}

// Cancel stops the running operation and moves on to the next request
// without waiting for the child to exit; its cleanup continues in the
// background.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	op := c.current
	c.mu.Unlock()
	if op == nil {
		return ErrNothingRunning
	}
	c.cancelOperation(op)
	return nil
}

func (c *Coordinator) cancelOperation(op *operation) {
	if err := c.exec.Cancel(op.req); err != nil {
		// Not registered yet, or already gone; the context covers both.
		c.logger.Debug("operation_cancel_command", "game", op.req.Game, "error", err)
	}
	op.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != op {
		return
	}
	c.completeLocked(op, ErrCancelled)
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Queue returns a copy of the pending requests, head first.
func (c *Coordinator) Queue() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.queue))
	copy(out, c.queue)
	return out
}

// Current returns the running request.
func (c *Coordinator) Current() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Request{}, false
	}
	return c.current.req, true
}

// Progress returns a snapshot of the running operation's progress.
func (c *Coordinator) Progress() (parser.Snapshot, bool) {
	c.mu.Lock()
	op := c.current
	c.mu.Unlock()
	if op == nil {
		return parser.Snapshot{}, false
	}
	return op.status.Snapshot(), true
}

// WaitIdle blocks until nothing is running or queued.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown drops the queue, cancels the running operation and waits for its
// pipeline to return and for pending callbacks to run.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dropped := len(c.queue)
	c.queue = nil
	op := c.current
	c.mu.Unlock()

	c.logger.Info("coordinator_shutdown", "dropped", dropped, "running", op != nil)
	if op != nil {
		c.cancelOperation(op)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.signalIdleLocked()
	c.mu.Unlock()
	c.notify.close()
	return nil
}

// advanceLocked moves the queue head into the empty slot.
func (c *Coordinator) advanceLocked() {
	if c.closed || c.current != nil || len(c.queue) == 0 {
		c.signalIdleLocked()
		return
	}

	c.setStateLocked(StateAdvancing)
	req := c.queue[0]
	c.queue = c.queue[1:]

	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{
		req:     req,
		status:  parser.NewStatus(),
		rates:   stats.NewRateTracker(),
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	c.current = op
	c.setStateLocked(StateRunning)

	c.logger.Info("operation_started", "game", req.Game, "kind", req.Kind.String(), "queue_len", len(c.queue))
	if cb := c.callbacks.OnStart; cb != nil {
		c.notify.push(func() { cb(req) })
	}

	c.wg.Add(1)
	go c.run(op)
}

func (c *Coordinator) run(op *operation) {
	defer c.wg.Done()

	err := c.exec.Execute(op.ctx, op.req, op.status, func(l parser.Line) {
		c.observeLine(op, l)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != op {
		return
	}
	if op.ctx.Err() != nil {
		// Cancel is in progress and lost the race for the lock.
		err = ErrCancelled
	}
	c.completeLocked(op, err)
}

// observeLine feeds rate samples and forwards the line while op is current.
func (c *Coordinator) observeLine(op *operation, l parser.Line) {
	snap := op.status.Snapshot()
	switch l.Kind {
	case parser.LineDownloadRate:
		if snap.DownloadRate != nil {
			op.rates.AddDownload(snap.DownloadRate.Raw)
		}
	case parser.LineDiskRate:
		if snap.DiskRate != nil {
			op.rates.AddDisk(snap.DiskRate.Write)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != op {
		return
	}
	if cb := c.callbacks.OnLine; cb != nil {
		c.notify.push(func() { cb(op.req, l) })
	}
	if cb := c.callbacks.OnProgress; cb != nil && changesProgress(l.Kind) {
		c.notify.push(func() { cb(op.req, snap) })
	}
}

func changesProgress(k parser.LineKind) bool {
	switch k {
	case parser.LineProgress, parser.LineTransfer, parser.LineCache,
		parser.LineDownloadRate, parser.LineDiskRate, parser.LineVerification:
		return true
	}
	return false
}

// completeLocked dispatches op's outcome, empties the slot and advances.
func (c *Coordinator) completeLocked(op *operation, err error) {
	outcome := Outcome{
		Request:  op.req,
		Err:      err,
		Started:  op.started,
		Finished: time.Now(),
		Final:    op.status.Snapshot(),
		Download: op.rates.Download(),
		Disk:     op.rates.Disk(),
	}

	switch {
	case err == nil:
		c.logger.Info("operation_succeeded",
			"game", op.req.Game,
			"kind", op.req.Kind.String(),
			"duration", outcome.Duration().String(),
		)
	case outcome.Cancelled():
		c.logger.Info("operation_cancelled", "game", op.req.Game, "kind", op.req.Kind.String())
	default:
		c.logger.Error("operation_failed",
			"game", op.req.Game,
			"kind", op.req.Kind.String(),
			"error", err,
		)
	}

	if cb := c.callbacks.OnComplete; cb != nil {
		c.notify.push(func() { cb(outcome) })
	}

	c.current = nil
	op.cancel()
	c.setStateLocked(StateIdle)
	c.advanceLocked()
}

func (c *Coordinator) setStateLocked(to State) {
	from := c.state
	if !CanTransition(from, to) {
		c.logger.Error("coordinator_illegal_transition", "from", from.String(), "to", to.String())
	}
	c.state = to
	if cb := c.callbacks.OnStateChange; cb != nil {
		c.notify.push(func() { cb(from, to) })
	}
}

func (c *Coordinator) signalIdleLocked() {
	if c.current == nil && len(c.queue) == 0 && !c.idleClosed {
		close(c.idle)
		c.idleClosed = true
	}
}
