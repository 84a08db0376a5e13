// Package health decides whether each platform can currently receive builds.
package health

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/registry"
	"golang.org/x/sync/errgroup"
)

// Prober checks platform directories and health commands.
type Prober struct {
	registry *registry.Registry
	runner   ports.CommandRunner
	logger   *slog.Logger
	now      func() time.Time
	limit    int
}

// Option configures the prober.
type Option func(*Prober)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		p.now = now
	}
}

// WithConcurrency bounds how many probes run at once (default: unbounded).
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		p.limit = n
	}
}

func New(reg *registry.Registry, runner ports.CommandRunner, opts ...Option) *Prober {
	p := &Prober{
		registry: reg,
		runner:   runner,
		logger:   logging.NewNop(),
		now:      time.Now,
		limit:    -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check computes the status of a platform without recording it.
//
//   - missing directory: unavailable
//   - health command exits non-zero or cannot run: error
//   - otherwise: available
func (p *Prober) Check(ctx context.Context, platform domain.Platform) domain.Status {
	info, err := os.Stat(platform.Dir)
	if err != nil || !info.IsDir() {
		p.logger.Warn("platform directory missing", "platform_id", platform.ID, "dir", platform.Dir)
		return domain.StatusUnavailable
	}
	if platform.HealthCheckCmd == "" {
		return domain.StatusAvailable
	}

	res, err := p.runner.Run(ctx, ports.Command{
		Key:     platform.ID,
		Dir:     platform.Dir,
		Command: platform.HealthCheckCmd,
	})
	if err != nil {
		p.logger.Warn("health check could not run", "platform_id", platform.ID, "error", err)
		return domain.StatusError
	}
	if !res.Success() {
		p.logger.Warn("health check failed", "platform_id", platform.ID, "exit_code", res.ExitCode, "stderr", res.Stderr)
		return domain.StatusError
	}
	return domain.StatusAvailable
}

// Probe checks one platform and records the result in the registry.
func (p *Prober) Probe(ctx context.Context, id string) (domain.Status, error) {
	platform, err := p.registry.Get(id)
	if err != nil {
		return domain.StatusUnknown, err
	}
	status := p.Check(ctx, platform)
	if err := p.registry.SetHealth(ctx, id, status, p.now()); err != nil {
		return status, err
	}
	p.logger.Debug("platform probed", "platform_id", id, "status", status)
	return status, nil
}

// ProbeAll probes every registered platform concurrently.
func (p *Prober) ProbeAll(ctx context.Context) (map[string]domain.Status, error) {
	platforms := p.registry.All()
	statuses := make([]domain.Status, len(platforms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, platform := range platforms {
		g.Go(func() error {
			status, err := p.Probe(gctx, platform.ID)
			statuses[i] = status
			return err
		})
	}
	err := g.Wait()

	out := make(map[string]domain.Status, len(platforms))
	for i, platform := range platforms {
		out[platform.ID] = statuses[i]
	}
	return out, err
}
