// Package registry tracks in-flight commands by identifier so they can be
// cancelled by name.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Process is the part of a running command the registry needs.
// *process.Handle satisfies it.
type Process interface {
	PID() int
	Cancel()
	Done() <-chan struct{}
}

// UnknownCommandError is returned when an identifier is not registered.
type UnknownCommandError struct {
	ID string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command identifier %q", e.ID)
}

// Callbacks are optional hooks, called outside the registry lock.
type Callbacks struct {
	OnRegister   func(id string, pid int)
	OnDeregister func(id string)
	OnStop       func(id string, pid int)
}

// Registry maps identifiers to running commands. Keys are unique and the last
// Register for a key wins; superseding an entry does not cancel it, callers
// that want that must Stop the previous one first.
type Registry struct {
	logger    *slog.Logger
	callbacks Callbacks

	mu      sync.RWMutex
	entries map[string]Process
}

// New creates an empty registry.
func New(logger *slog.Logger, callbacks Callbacks) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		callbacks: callbacks,
		entries:   make(map[string]Process),
	}
}

// Register stores p under id and returns the entry it replaced, if any.
func (r *Registry) Register(id string, p Process) (Process, bool) {
	r.mu.Lock()
	prev, replaced := r.entries[id]
	r.entries[id] = p
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("command_superseded", "id", id, "old_pid", prev.PID(), "new_pid", p.PID())
	}
	r.logger.Debug("command_registered", "id", id, "pid", p.PID())
	if r.callbacks.OnRegister != nil {
		r.callbacks.OnRegister(id, p.PID())
	}
	return prev, replaced
}

// Lookup returns the command registered under id.
func (r *Registry) Lookup(id string) (Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	return p, ok
}

// Deregister removes id. It is a no-op for unknown identifiers.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok && r.callbacks.OnDeregister != nil {
		r.callbacks.OnDeregister(id)
	}
}

// DeregisterIf removes id only while it still maps to p. Pipelines use it on
// exit so they never evict a newer command registered under the same id.
func (r *Registry) DeregisterIf(id string, p Process) bool {
	r.mu.Lock()
	cur, ok := r.entries[id]
	if ok && cur == p {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	removed := ok && cur == p
	if removed && r.callbacks.OnDeregister != nil {
		r.callbacks.OnDeregister(id)
	}
	return removed
}

// Stop removes id and begins cancelling its command. It returns as soon as
// the interrupt has been scheduled; wait on the returned process's Done to
// observe the exit. Unknown identifiers return *UnknownCommandError.
func (r *Registry) Stop(id string) (Process, error) {
	r.mu.Lock()
	p, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return nil, &UnknownCommandError{ID: id}
	}

	r.logger.Info("command_stop_requested", "id", id, "pid", p.PID())
	p.Cancel()
	if r.callbacks.OnStop != nil {
		r.callbacks.OnStop(id, p.PID())
	}
	return p, nil
}

// StopAll cancels every registered command and empties the registry. It
// returns the stopped processes.
func (r *Registry) StopAll() []Process {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]Process)
	r.mu.Unlock()

	stopped := make([]Process, 0, len(entries))
	for id, p := range entries {
		r.logger.Info("command_stop_requested", "id", id, "pid", p.PID())
		p.Cancel()
		if r.callbacks.OnStop != nil {
			r.callbacks.OnStop(id, p.PID())
		}
		stopped = append(stopped, p)
	}
	return stopped
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
