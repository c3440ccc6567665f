package stream

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// stdinWriter serializes writes to the child's stdin on its own goroutine so
// that a child which is slow to read never stalls the output drains.
type stdinWriter struct {
	w      io.WriteCloser
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	closing bool

	writes atomic.Int64
	done   chan struct{}
}

func newStdinWriter(w io.WriteCloser, logger *slog.Logger) *stdinWriter {
	if w == nil {
		return nil
	}
	s := &stdinWriter{
		w:      w,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// enqueue schedules p to be written. Ignored once close has been requested.
func (s *stdinWriter) enqueue(p string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.queue = append(s.queue, p)
	s.cond.Signal()
}

// close closes stdin after everything already queued has been written.
func (s *stdinWriter) close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closing = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *stdinWriter) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			if err := s.w.Close(); err != nil {
				s.logger.Debug("stdin_close_failed", "error", err)
			}
			return
		}
		p := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := io.WriteString(s.w, p); err != nil {
			s.logger.Warn("stdin_write_failed", "error", err)
			continue
		}
		s.writes.Add(1)
	}
}

func (s *stdinWriter) count() int64 {
	if s == nil {
		return 0
	}
	return s.writes.Load()
}
