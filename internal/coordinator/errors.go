package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the outcome of an operation cancelled while running.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNothingRunning is returned by Cancel when the slot is empty.
	ErrNothingRunning = errors.New("no operation is running")

	// ErrShutdown is returned by Enqueue after Shutdown.
	ErrShutdown = errors.New("coordinator is shut down")
)

// DuplicateOperationError rejects a request equal to one already queued or
// running.
type DuplicateOperationError struct {
	Request Request
	Running bool
}

func (e *DuplicateOperationError) Error() string {
	where := "queued"
	if e.Running {
		where = "running"
	}
	return fmt.Sprintf("duplicate operation: %s is already %s", e.Request, where)
}
