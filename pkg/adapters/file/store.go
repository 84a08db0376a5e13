package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/weave/pkg/domain"
)

// Store implements ports.StateStore using the local filesystem.
// It stores one JSON file per platform in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".weave/state".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".weave", "state")
	}
	return &Store{BasePath: basePath}
}

// Save persists the platform state to a JSON file atomically.
func (s *Store) Save(ctx context.Context, platformID string, state domain.PlatformState) error {
	if platformID == "" {
		return fmt.Errorf("platformID cannot be empty")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return WriteAtomic(filepath.Join(s.BasePath, platformID+".json"), data)
}

// Load retrieves the platform state from its JSON file.
func (s *Store) Load(ctx context.Context, platformID string) (domain.PlatformState, error) {
	if platformID == "" {
		return domain.PlatformState{}, fmt.Errorf("platformID cannot be empty")
	}

	data, err := os.ReadFile(filepath.Join(s.BasePath, platformID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.PlatformState{}, domain.ErrStateNotFound
		}
		return domain.PlatformState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var state domain.PlatformState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PlatformState{}, fmt.Errorf("failed to unmarshal platform state: %w", err)
	}
	return state, nil
}

// Delete removes the state file.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	if platformID == "" {
		return fmt.Errorf("platformID cannot be empty")
	}
	err := os.Remove(filepath.Join(s.BasePath, platformID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// List returns the platforms with a state file.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
