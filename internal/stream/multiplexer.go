package stream

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// defaultReadSize is the per-read buffer for each pipe.
const defaultReadSize = 32 * 1024

// Config holds the pipes and stdin policy for a Multiplexer.
type Config struct {
	// Stdout and Stderr are drained until they report EOF.
	Stdout io.Reader
	Stderr io.Reader

	// Stdin is optional. It is closed once the payload has been written,
	// or when both outputs reach EOF.
	Stdin io.WriteCloser

	// Payload is written to Stdin. With a Trigger it is written once, after
	// the trigger matches; without one it is written immediately.
	Payload string
	Trigger *Trigger

	// Reply is consulted for every chunk. Any reply it returns is written to
	// Stdin. Used for multi-turn prompts; independent of Trigger.
	Reply ReplyFunc

	// Logger receives one debug record per chunk. Defaults to slog.Default().
	Logger *slog.Logger

	// ReadSize bounds a single read. Defaults to 32KiB.
	ReadSize int
}

// Multiplexer turns two output pipes into one ordered-per-origin channel of
// chunks. Each pipe is read on its own goroutine so a child blocked on a full
// stderr pipe is never starved while stdout is being read, and vice versa.
type Multiplexer struct {
	stdout   io.Reader
	stderr   io.Reader
	payload  string
	trigger  *Trigger
	reply    ReplyFunc
	logger   *slog.Logger
	readSize int

	stdin *stdinWriter

	triggered atomic.Bool

	// tails hold the last len(trigger)-1 bytes seen per origin so a trigger
	// split across two reads still matches.
	tailMu sync.Mutex
	tails  [2]string

	bytesRead [2]atomic.Int64
	chunks    [2]atomic.Int64
}

// New creates a Multiplexer. It does not read anything until Run is called.
func New(cfg Config) *Multiplexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readSize := cfg.ReadSize
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	return &Multiplexer{
		stdout:   cfg.Stdout,
		stderr:   cfg.Stderr,
		payload:  cfg.Payload,
		trigger:  cfg.Trigger,
		reply:    cfg.Reply,
		logger:   logger,
		readSize: readSize,
		stdin:    newStdinWriter(cfg.Stdin, logger),
	}
}

// Run starts both drains and returns the chunk channel. The channel is closed
// after both pipes have reported EOF (or a read error).
//
// The caller must keep receiving until the channel is closed; an unread
// channel applies backpressure all the way to the child process.
func (m *Multiplexer) Run() <-chan Chunk {
	out := make(chan Chunk, 64)

	if m.payload != "" && m.trigger == nil {
		m.triggered.Store(true)
		m.stdin.enqueue(m.payload)
		if m.reply == nil {
			m.stdin.close()
		}
	}

	var wg sync.WaitGroup
	for _, src := range []struct {
		origin Origin
		r      io.Reader
	}{
		{Stdout, m.stdout},
		{Stderr, m.stderr},
	} {
		if src.r == nil {
			continue
		}
		wg.Add(1)
		go func(origin Origin, r io.Reader) {
			defer wg.Done()
			m.drain(origin, r, out)
		}(src.origin, src.r)
	}

	go func() {
		wg.Wait()
		m.stdin.close()
		close(out)
	}()

	return out
}

// drain reads r until EOF, emitting a chunk for every non-empty read.
func (m *Multiplexer) drain(origin Origin, r io.Reader, out chan<- Chunk) {
	buf := make([]byte, m.readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c := Chunk{Origin: origin, Text: string(buf[:n]), Time: time.Now()}
			m.bytesRead[origin].Add(int64(n))
			m.chunks[origin].Add(1)
			m.logger.Debug("output_chunk", "stream", origin.String(), "bytes", n)
			m.observe(c)
			out <- c
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				m.logger.Warn("output_read_failed", "stream", origin.String(), "error", err)
			}
			return
		}
	}
}

// observe applies the trigger and reply policies to c.
func (m *Multiplexer) observe(c Chunk) {
	if m.trigger != nil && c.Origin == m.trigger.Origin && !m.triggered.Load() {
		if m.matchTrigger(c) && m.triggered.CompareAndSwap(false, true) {
			m.logger.Debug("stdin_trigger_matched",
				"stream", c.Origin.String(),
				"trigger", m.trigger.Substring,
			)
			m.stdin.enqueue(m.payload)
			if m.reply == nil {
				m.stdin.close()
			}
		}
	}

	if m.reply != nil {
		if r, ok := m.reply(c); ok {
			m.stdin.enqueue(r)
		}
	}
}

func (m *Multiplexer) matchTrigger(c Chunk) bool {
	sub := m.trigger.Substring
	if sub == "" {
		return true
	}

	m.tailMu.Lock()
	defer m.tailMu.Unlock()

	text := m.tails[c.Origin] + c.Text
	if strings.Contains(text, sub) {
		return true
	}
	keep := len(sub) - 1
	if len(text) > keep {
		text = text[len(text)-keep:]
	}
	m.tails[c.Origin] = text
	return false
}

// Triggered reports whether the stdin payload has been released.
func (m *Multiplexer) Triggered() bool {
	return m.triggered.Load()
}

// StdinWrites returns how many payloads or replies reached stdin.
func (m *Multiplexer) StdinWrites() int64 {
	return m.stdin.count()
}

// Stats returns bytes and chunks read from one origin.
func (m *Multiplexer) Stats(origin Origin) (bytesRead, chunks int64) {
	return m.bytesRead[origin].Load(), m.chunks[origin].Load()
}
