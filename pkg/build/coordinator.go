// Package build runs platform builds with at most one build process per platform.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/registry"
	"golang.org/x/sync/singleflight"
)

// DefaultLockTTL is the distributed lock lease for one build.
const DefaultLockTTL = 10 * time.Minute

// lockEntry holds the per-platform mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Coordinator runs BuildCmd for platforms.
//
// Concurrent non-forced requests for the same platform share one build.
// A forced request waits for the running build to finish and then starts a
// new one. Either way a platform never has two build processes at once.
type Coordinator struct {
	registry *registry.Registry
	runner   ports.CommandRunner
	env      func(domain.Platform) []string

	group singleflight.Group

	mu       sync.Mutex
	locks    map[string]*lockEntry
	inFlight map[string]int

	locker  ports.DistributedLocker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLocker also serializes builds across orchestrator instances.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.locker = locker
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithEnv sets the function computing extra environment for a platform's build.
func WithEnv(fn func(domain.Platform) []string) Option {
	return func(c *Coordinator) {
		c.env = fn
	}
}

func NewCoordinator(reg *registry.Registry, runner ports.CommandRunner, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: reg,
		runner:   runner,
		locks:    make(map[string]*lockEntry),
		inFlight: make(map[string]int),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build runs the platform's build command and reports whether it succeeded.
//
// A failing build returns (false, nil). Skipped builds (unavailable platform,
// missing directory) are logged and return an error wrapping domain.ErrSkipped.
// Other errors are reserved for unknown platforms and failures to run the
// command at all.
//
// A shared build runs detached from any single caller's context; each caller
// stops waiting when its own ctx is done.
func (c *Coordinator) Build(ctx context.Context, id string, force bool) (bool, error) {
	platform, err := c.registry.Get(id)
	if err != nil {
		return false, err
	}
	if platform.Status == domain.StatusUnavailable || platform.Status == domain.StatusError {
		c.logger.Warn("skipping build of unavailable platform", "platform_id", id, "status", platform.Status)
		c.emitFinish(ctx, &domain.BuildEvent{PlatformID: id, Skipped: true})
		return false, fmt.Errorf("%w: %s is %s", domain.ErrSkipped, id, platform.Status)
	}

	if force {
		return c.withLock(ctx, id, func(ctx context.Context) (bool, error) {
			return c.run(ctx, platform)
		})
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		return c.withLock(detached, id, func(ctx context.Context) (bool, error) {
			return c.run(ctx, platform)
		})
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("attached to in-flight build", "platform_id", id)
		}
		ok, _ := res.Val.(bool)
		return ok, res.Err
	}
}

// InFlight reports whether a build process is running for the platform.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[id] > 0
}

func (c *Coordinator) acquire(id string) *lockEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.locks[id]
	if !exists {
		entry = &lockEntry{}
		c.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(c.locks, id)
	}
}

func (c *Coordinator) withLock(ctx context.Context, id string, fn func(context.Context) (bool, error)) (bool, error) {
	entry := c.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		c.release(id)
	}()

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, "build:"+id, c.lockTTL)
		if err != nil {
			return false, fmt.Errorf("failed to acquire distributed build lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				c.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"platform_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (c *Coordinator) run(ctx context.Context, platform domain.Platform) (bool, error) {
	if info, err := os.Stat(platform.Dir); err != nil || !info.IsDir() {
		c.logger.Warn("skipping build, platform directory missing", "platform_id", platform.ID, "dir", platform.Dir)
		c.emitFinish(ctx, &domain.BuildEvent{PlatformID: platform.ID, Skipped: true})
		return false, fmt.Errorf("%w: %s has no directory %s", domain.ErrSkipped, platform.ID, platform.Dir)
	}

	c.setInFlight(platform.ID, 1)
	defer c.setInFlight(platform.ID, -1)

	ev := &domain.BuildEvent{PlatformID: platform.ID}
	if c.hooks.OnBuildStart != nil {
		c.hooks.OnBuildStart(ctx, ev)
	}
	c.logger.Info("building platform", "platform_id", platform.ID)

	var env []string
	if c.env != nil {
		env = c.env(platform)
	}

	start := time.Now()
	res, err := c.runner.Run(ctx, ports.Command{
		Key:     platform.ID,
		Dir:     platform.Dir,
		Command: platform.BuildCmd,
		Env:     env,
	})
	ev.Duration = time.Since(start)

	if err != nil {
		ev.Err = err
		c.emitFinish(ctx, ev)
		c.logger.Error("build could not run", "platform_id", platform.ID, "error", err)
		return false, fmt.Errorf("build %s: %w", platform.ID, err)
	}

	c.logger.Debug("build output", "platform_id", platform.ID, "stdout", res.Stdout, "stderr", res.Stderr)
	ev.Success = res.Success()
	if !ev.Success {
		ev.Err = fmt.Errorf("%w: %s exited with code %d", domain.ErrBuildFailed, platform.ID, res.ExitCode)
		c.logger.Error("build failed", "platform_id", platform.ID, "exit_code", res.ExitCode, "duration", ev.Duration)
	} else {
		c.logger.Info("build succeeded", "platform_id", platform.ID, "duration", ev.Duration)
	}
	c.emitFinish(ctx, ev)
	return ev.Success, nil
}

func (c *Coordinator) setInFlight(id string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[id] += delta
	if c.inFlight[id] <= 0 {
		delete(c.inFlight, id)
	}
}

func (c *Coordinator) emitFinish(ctx context.Context, ev *domain.BuildEvent) {
	if c.hooks.OnBuildFinish != nil {
		c.hooks.OnBuildFinish(ctx, ev)
	}
}
