// Package legendary drives the legendary CLI: it builds argument vectors,
// runs them through the process runner, registers every run by identifier,
// parses the output into progress and a verdict, and serves read-only
// queries over the tool's state files.
package legendary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/MythicApp/Mythic-sub001/internal/cache"
	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/process"
	"github.com/MythicApp/Mythic-sub001/internal/registry"
	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// ConfigPathEnv points the tool at its state directory.
const ConfigPathEnv = "LEGENDARY_CONFIG_PATH"

// Invocation is one request to run the tool.
type Invocation struct {
	// ID names the run in the registry. Reusing the ID of a running
	// invocation cancels that one. Empty gets a generated ID.
	ID string

	Args []string

	// Stdin is written once Trigger matches, or at start without a Trigger.
	Stdin   string
	Trigger *stream.Trigger

	// Reply answers prompts chunk by chunk.
	Reply stream.ReplyFunc

	// Env is added on top of the client's environment.
	Env map[string]string

	// UseCache accepts a cached result (possibly one run old) and refreshes
	// it in the background. Cached runs get generated IDs.
	UseCache bool

	// Mutating runs hold the config directory lock for their whole run.
	// Only runs that write installed game data set it.
	Mutating bool

	// Status receives parsed progress. Optional.
	Status *parser.Status

	// OnLine sees every parsed output line. Optional.
	OnLine func(parser.Line)
}

// Hooks observe every invocation. All are optional.
type Hooks struct {
	OnStart func(id string, args []string, pid int)
	OnLine  func(id string, line parser.Line)
	OnExit  func(id string, args []string, res *process.Result, err error)
	OnCache func(hit bool)
}

// Config holds the client's collaborators and settings.
type Config struct {
	// Path is the tool binary.
	Path string

	// ConfigDir is exported to the tool as LEGENDARY_CONFIG_PATH.
	ConfigDir string

	// InheritEnv starts the child from the parent's environment. When false
	// the child sees only LEGENDARY_CONFIG_PATH, Env and Invocation.Env.
	InheritEnv bool
	Env        map[string]string

	LockTimeout time.Duration

	Runner   *process.Runner
	Registry *registry.Registry
	Cache    *cache.Cache // nil disables caching
	Logger   *slog.Logger
	Hooks    Hooks
}

// Client runs tool invocations. Safe for concurrent use.
type Client struct {
	cfg      Config
	runner   *process.Runner
	registry *registry.Registry
	cache    *cache.Cache
	lock     *DirLock
	state    *StateStore
	logger   *slog.Logger
}

// NewClient creates a client. Runner and Registry are created when nil.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, errors.New("legendary path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = process.NewRunner(logger, process.DefaultStopPolicy())
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New(logger, registry.Callbacks{})
	}

	c := &Client{
		cfg:      cfg,
		runner:   runner,
		registry: reg,
		cache:    cfg.Cache,
		logger:   logger,
	}
	if cfg.ConfigDir != "" {
		c.lock = NewDirLock(cfg.ConfigDir, cfg.LockTimeout)
		c.state = NewStateStore(cfg.ConfigDir)
	}
	return c, nil
}

// Registry returns the registry the client registers runs in.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// State returns the state store, or nil without a config directory.
func (c *Client) State() *StateStore {
	return c.state
}

// Stop cancels the run registered under id.
func (c *Client) Stop(id string) error {
	_, err := c.registry.Stop(id)
	return err
}

// StopAll cancels every registered run and waits until all have exited or
// ctx is done.
func (c *Client) StopAll(ctx context.Context) error {
	for _, p := range c.registry.StopAll() {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run executes inv to completion. The error is the invocation's verdict:
// *parser.OperationFailure when the output reported a failure,
// *process.ExitError for a non-zero exit without any marker,
// *process.LaunchError when the tool could not be started, and an error
// wrapping process.ErrStopped when the run was cancelled. The result is
// non-nil whenever the tool ran.
func (c *Client) Run(ctx context.Context, inv Invocation) (*process.Result, error) {
	if !inv.UseCache || c.cache == nil {
		return c.execute(ctx, inv)
	}

	sig := cache.Signature(inv.Args)
	res, hit, err := c.cache.Fetch(ctx, sig, func(ctx context.Context) (*process.Result, error) {
		fresh := inv
		fresh.ID = ""
		return c.execute(ctx, fresh)
	})
	if c.cfg.Hooks.OnCache != nil {
		c.cfg.Hooks.OnCache(hit)
	}
	if hit {
		c.logger.Debug("command_cache_hit", "signature", sig[:12], "args", inv.Args)
	}
	return res, err
}

func (c *Client) execute(ctx context.Context, inv Invocation) (*process.Result, error) {
	id := inv.ID
	if id == "" {
		id = uuid.NewString()
	}

	// A run being replaced may hold the lock itself, so it is stopped
	// before waiting on the lock.
	if err := c.supersede(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	if inv.Mutating && c.lock != nil {
		lock, err := c.lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		defer func() { _ = lock.Unlock() }()
	}

	p := parser.New(parser.Config{Status: inv.Status})

	h, err := c.runner.Start(ctx, id, process.Command{
		Path:    c.cfg.Path,
		Args:    inv.Args,
		Env:     c.environment(inv.Env),
		Stdin:   inv.Stdin,
		Trigger: inv.Trigger,
		Reply:   inv.Reply,
	})
	if err != nil {
		if c.cfg.Hooks.OnExit != nil {
			c.cfg.Hooks.OnExit(id, inv.Args, nil, err)
		}
		return nil, err
	}

	if prev, replaced := c.registry.Register(id, h); replaced {
		prev.Cancel()
	}
	defer c.registry.DeregisterIf(id, h)

	if c.cfg.Hooks.OnStart != nil {
		c.cfg.Hooks.OnStart(id, inv.Args, h.PID())
	}

	emit := func(lines []parser.Line) {
		for _, l := range lines {
			if inv.OnLine != nil {
				inv.OnLine(l)
			}
			if c.cfg.Hooks.OnLine != nil {
				c.cfg.Hooks.OnLine(id, l)
			}
		}
	}
	for chunk := range h.Chunks() {
		emit(p.Feed(chunk))
	}
	emit(p.Flush())

	res, err := h.Wait()
	if err == nil {
		err = p.Verdict(res.ExitCode)
	} else {
		err = fmt.Errorf("%s: %w", id, err)
	}

	if err != nil {
		c.logger.Warn("command_failed", "id", id, "exit_code", res.ExitCode, "error", err)
	}
	if c.cfg.Hooks.OnExit != nil {
		c.cfg.Hooks.OnExit(id, inv.Args, res, err)
	}
	return res, err
}

// supersede cancels the run registered under id and waits for it to exit.
func (c *Client) supersede(ctx context.Context, id string) error {
	prev, ok := c.registry.Lookup(id)
	if !ok {
		return nil
	}
	c.logger.Info("command_superseding", "id", id, "pid", prev.PID())
	prev.Cancel()
	select {
	case <-prev.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// environment builds the child's environment. It is never nil, so the
// runner never falls back to inheriting implicitly.
func (c *Client) environment(extra map[string]string) []string {
	vars := make(map[string]string, len(c.cfg.Env)+len(extra)+1)
	for k, v := range c.cfg.Env {
		vars[k] = v
	}
	for k, v := range extra {
		vars[k] = v
	}
	if c.cfg.ConfigDir != "" {
		vars[ConfigPathEnv] = c.cfg.ConfigDir
	}

	var base []string
	if c.cfg.InheritEnv {
		base = os.Environ()
	}
	return process.MergeEnv(base, vars)
}
