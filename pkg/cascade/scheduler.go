// Package cascade rebuilds every platform downstream of a changed one.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/graph"
	"golang.org/x/sync/errgroup"
)

// Mode selects the order in which dependents are rebuilt.
type Mode string

const (
	// Topological builds in waves; a platform starts only after all of its
	// affected dependencies finished. Platforms in one wave build concurrently.
	Topological Mode = "topological"
	// BFS builds sequentially in breadth-first order from the origin. In a diamond
	// a platform may be built before one of its dependencies.
	BFS Mode = "bfs"
)

// Builder builds one platform.
type Builder interface {
	Build(ctx context.Context, id string, force bool) (bool, error)
}

// Scheduler drives cascades over a dependency graph.
type Scheduler struct {
	graph   *graph.Graph
	builder Builder
	mode    Mode
	logger  *slog.Logger
}

// Option configures the Scheduler.
type Option func(*Scheduler)

func WithMode(mode Mode) Option {
	return func(s *Scheduler) {
		s.mode = mode
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(g *graph.Graph, builder Builder, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:   g,
		builder: builder,
		mode:    Topological,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cascade builds origin and everything reachable through dependents edges and
// returns the platforms that built successfully, in build order.
// Dependents of a platform whose build failed are skipped. A platform the
// coordinator skipped (unavailable, missing directory) does not block them. The returned error
// joins every failure; the partial order is returned alongside it.
func (s *Scheduler) Cascade(ctx context.Context, origin string) ([]string, error) {
	if !s.graph.Has(origin) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, origin)
	}
	s.logger.Info("cascade started", "origin", origin, "mode", s.mode)

	var (
		built []string
		err   error
	)
	if s.mode == BFS {
		built, err = s.breadthFirst(ctx, origin)
	} else {
		built, err = s.waves(ctx, origin)
	}

	if err != nil {
		s.logger.Warn("cascade finished with failures", "origin", origin, "built", built, "error", err)
	} else {
		s.logger.Info("cascade finished", "origin", origin, "built", built)
	}
	return built, err
}

func (s *Scheduler) waves(ctx context.Context, origin string) ([]string, error) {
	waves, err := s.graph.BuildOrder(origin)
	if err != nil {
		return nil, err
	}

	var (
		built  []string
		errs   []error
		failed = make(map[string]bool)
	)
	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var runnable []string
		for _, id := range wave {
			if s.blocked(id, failed) {
				failed[id] = true
				s.logger.Warn("skipping platform, a dependency did not build", "platform_id", id)
				continue
			}
			runnable = append(runnable, id)
		}

		outcomes := make([]outcome, len(runnable))
		waveErrs := make([]error, len(runnable))
		var g errgroup.Group
		for i, id := range runnable {
			g.Go(func() error {
				outcomes[i], waveErrs[i] = s.buildOne(ctx, id)
				return nil
			})
		}
		_ = g.Wait()

		for i, id := range runnable {
			switch outcomes[i] {
			case builtOK:
				built = append(built, id)
			case skipped:
			default:
				failed[id] = true
				errs = append(errs, waveErrs[i])
			}
		}
	}
	return built, errors.Join(errs...)
}

func (s *Scheduler) breadthFirst(ctx context.Context, origin string) ([]string, error) {
	order, err := s.graph.ReachableDependents(origin)
	if err != nil {
		return nil, err
	}

	var (
		built  []string
		errs   []error
		failed = make(map[string]bool)
	)
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if s.blocked(id, failed) {
			failed[id] = true
			s.logger.Warn("skipping platform, a dependency did not build", "platform_id", id)
			continue
		}
		switch res, err := s.buildOne(ctx, id); res {
		case builtOK:
			built = append(built, id)
		case skipped:
		default:
			failed[id] = true
			errs = append(errs, err)
		}
	}
	return built, errors.Join(errs...)
}

type outcome int

const (
	buildFailed outcome = iota
	builtOK
	skipped
)

// buildOne builds id. A skipped build is logged and does not block dependents.
func (s *Scheduler) buildOne(ctx context.Context, id string) (outcome, error) {
	ok, err := s.builder.Build(ctx, id, false)
	switch {
	case errors.Is(err, domain.ErrSkipped):
		s.logger.Warn("platform skipped during cascade", "platform_id", id, "reason", err)
		return skipped, nil
	case err != nil:
		return buildFailed, fmt.Errorf("platform %s: %w", id, err)
	case !ok:
		return buildFailed, fmt.Errorf("%w: %s", domain.ErrBuildFailed, id)
	}
	return builtOK, nil
}

func (s *Scheduler) blocked(id string, failed map[string]bool) bool {
	deps, _ := s.graph.Dependencies(id)
	for _, dep := range deps {
		if failed[dep] {
			return true
		}
	}
	return false
}
