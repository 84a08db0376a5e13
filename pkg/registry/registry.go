// Package registry holds the static table of platforms and their mutable status.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

// Registry manages the declared platforms.
// Platforms are registered once at load time; only their status fields change afterwards.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]*domain.Platform
	order     []string

	store  ports.StateStore
	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithStore persists status changes so they survive restarts.
func WithStore(store ports.StateStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a registry from the declared platforms.
// Every platform starts with StatusUnknown.
func New(platforms []domain.Platform, opts ...Option) (*Registry, error) {
	r := &Registry{
		platforms: make(map[string]*domain.Platform, len(platforms)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, p := range platforms {
		if _, exists := r.platforms[p.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate platform %q", domain.ErrConfig, p.ID)
		}
		copied := p
		copied.Status = domain.StatusUnknown
		r.platforms[p.ID] = &copied
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// Restore loads previously persisted last synchronization times.
// Status is not restored: it is always re-probed on start.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		state, err := r.store.Load(ctx, id)
		if errors.Is(err, domain.ErrStateNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to restore state of %s: %w", id, err)
		}
		r.platforms[id].LastSync = state.LastSync
	}
	return nil
}

// Get returns a copy of the platform.
func (r *Registry) Get(id string) (domain.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.platforms[id]
	if !ok {
		return domain.Platform{}, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, id)
	}
	return *p, nil
}

// All returns copies of every platform in declaration order.
func (r *Registry) All() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Platform, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.platforms[id])
	}
	return out
}

// Available returns the platforms whose last probe marked them available.
func (r *Registry) Available() []domain.Platform {
	var out []domain.Platform
	for _, p := range r.All() {
		if p.Status == domain.StatusAvailable {
			out = append(out, p)
		}
	}
	return out
}

// IsAvailable reports whether the platform may receive build and deploy calls.
func (r *Registry) IsAvailable(id string) bool {
	p, err := r.Get(id)
	return err == nil && p.Status == domain.StatusAvailable
}

// SetHealth records a probe result. Only the health probe calls this.
func (r *Registry) SetHealth(ctx context.Context, id string, status domain.Status, at time.Time) error {
	return r.update(ctx, id, func(p *domain.Platform) {
		p.Status = status
		p.LastCheck = &at
	})
}

// MarkSynced records a successful deployment. Only the deploy runner calls this.
func (r *Registry) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(p *domain.Platform) {
		p.LastSync = &at
	})
}

func (r *Registry) update(ctx context.Context, id string, fn func(*domain.Platform)) error {
	r.mu.Lock()
	p, ok := r.platforms[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, id)
	}
	fn(p)
	state := p.State()
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, id, state); err != nil {
		// The in-memory state stays authoritative for this process.
		r.logger.Warn("Failed to persist platform state", "platform_id", id, "err", err)
	}
	return nil
}
