package legendary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = ".orchestrator.lock"

// DirLock serialises mutating invocations against one tool config directory
// across processes. Two launchers sharing a directory would otherwise race on
// installed.json.
type DirLock struct {
	path    string
	timeout time.Duration
}

// NewDirLock returns a lock for dir. A zero timeout waits until ctx is done.
func NewDirLock(dir string, timeout time.Duration) *DirLock {
	return &DirLock{
		path:    filepath.Join(dir, lockFileName),
		timeout: timeout,
	}
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

// Acquire blocks until the lock is held, the timeout passes or ctx is done.
// The caller must call Unlock on the returned lock.
func (l *DirLock) Acquire(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	lock := flock.New(l.path)
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("config directory busy (lock held: %s)", l.path)
	}
	return lock, nil
}
