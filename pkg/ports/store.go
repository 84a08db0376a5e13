package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// StateStore defines the interface for persisting platform state.
// It lets last synchronization times survive an orchestrator restart.
type StateStore interface {
	// Save persists the state for a given platform ID.
	Save(ctx context.Context, platformID string, state domain.PlatformState) error

	// Load retrieves the state for a given platform ID.
	// Returns domain.ErrStateNotFound if nothing was saved.
	Load(ctx context.Context, platformID string) (domain.PlatformState, error)

	// Delete removes the state for a given platform ID.
	Delete(ctx context.Context, platformID string) error

	// List returns the IDs of all platforms with saved state.
	List(ctx context.Context) ([]string, error)
}
