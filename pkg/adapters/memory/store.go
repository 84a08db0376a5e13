package memory

import (
	"context"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.PlatformState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.PlatformState),
	}
}

// Save persists the state in memory.
func (s *Store) Save(ctx context.Context, platformID string, state domain.PlatformState) error {
	// Copy the time pointers so callers can't mutate stored state.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[platformID] = copyState(state)
	return nil
}

// Load retrieves the state from memory.
func (s *Store) Load(ctx context.Context, platformID string) (domain.PlatformState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[platformID]
	if !ok {
		return domain.PlatformState{}, domain.ErrStateNotFound
	}
	return copyState(state), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, platformID)
	return nil
}

// List returns the platforms with saved state.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func copyState(state domain.PlatformState) domain.PlatformState {
	out := domain.PlatformState{Status: state.Status}
	if state.LastCheck != nil {
		t := *state.LastCheck
		out.LastCheck = &t
	}
	if state.LastSync != nil {
		t := *state.LastSync
		out.LastSync = &t
	}
	return out
}
