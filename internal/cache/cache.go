// Package cache stores command results keyed by invocation signature.
//
// Fetch implements read-through with background refresh: a hit is returned
// immediately and a fresh execution is started in the background to replace
// it. Consumers that opt into caching therefore trade freshness for latency;
// they may see output that is one execution old, and the entry heals itself
// for later calls.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MythicApp/Mythic-sub001/internal/process"
)

// Signature derives a deterministic key from an argument vector. Arguments
// are length-prefixed so ["a b"] and ["a", "b"] never collide.
func Signature(args []string) string {
	h := sha256.New()
	var n [8]byte
	for _, a := range args {
		l := uint64(len(a))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Loader produces a fresh result for a signature.
type Loader func(ctx context.Context) (*process.Result, error)

// Stats are cumulative counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Refreshes       int64
	RefreshFailures int64
}

// Cache is safe for concurrent use. Results stored in it are shared and must
// be treated as read-only.
type Cache struct {
	logger *slog.Logger

	mu       sync.RWMutex
	entries  map[string]*process.Result
	inflight map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hits            atomic.Int64
	misses          atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64

	// OnRefresh, when set, is called after every background refresh.
	OnRefresh func(sig string, err error)
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		logger:   logger,
		entries:  make(map[string]*process.Result),
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Get returns the stored result for sig.
func (c *Cache) Get(sig string) (*process.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[sig]
	return r, ok
}

// Put stores r under sig, replacing any previous entry.
func (c *Cache) Put(sig string, r *process.Result) {
	if r == nil {
		return
	}
	c.mu.Lock()
	c.entries[sig] = r
	c.mu.Unlock()
}

// Clear discards every entry. Refreshes already running are not stopped and
// will repopulate their own entries when they finish.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*process.Result)
	c.mu.Unlock()
	c.logger.Debug("cache_cleared")
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetch returns the cached result for sig, refreshing it in the background,
// or runs load synchronously on a miss. hit reports which path was taken.
// Only successful loads are stored.
func (c *Cache) Fetch(ctx context.Context, sig string, load Loader) (result *process.Result, hit bool, err error) {
	if r, ok := c.Get(sig); ok {
		c.hits.Add(1)
		c.refresh(sig, load)
		return r, true, nil
	}

	c.misses.Add(1)
	r, err := load(ctx)
	if err != nil {
		return r, false, err
	}
	c.Put(sig, r)
	return r, false, nil
}

// refresh starts a background load for sig unless one is already running.
func (c *Cache) refresh(sig string, load Loader) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if _, busy := c.inflight[sig]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[sig] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, sig)
			c.mu.Unlock()
		}()

		c.refreshes.Add(1)
		r, err := load(c.ctx)
		if err != nil {
			c.refreshFailures.Add(1)
			c.logger.Debug("cache_refresh_failed", "signature", short(sig), "error", err)
		} else {
			c.Put(sig, r)
			c.logger.Debug("cache_refreshed", "signature", short(sig))
		}
		if c.OnRefresh != nil {
			c.OnRefresh(sig, err)
		}
	}()
}

// Refreshing reports whether a background refresh for sig is running.
func (c *Cache) Refreshing(sig string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inflight[sig]
	return ok
}

// Stats returns the cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.refreshFailures.Load(),
	}
}

// Close cancels background refreshes and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}
