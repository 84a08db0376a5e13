package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/weave/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "weave:"

// Store implements ports.StateStore using Redis.
// Each platform is one JSON string key; a set indexes the saved platforms.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the redis adapters.
type Option func(*options)

type options struct {
	prefix string
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func applyOptions(opts []Option) options {
	o := options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient builds a client for the configured address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewStore creates a Redis store from an existing client.
func NewStore(client *backend.Client, opts ...Option) *Store {
	o := applyOptions(opts)
	return &Store{client: client, prefix: o.prefix}
}

func (s *Store) key(platformID string) string {
	return s.prefix + "platform:" + platformID
}

func (s *Store) indexKey() string {
	return s.prefix + "platforms"
}

// Save persists the state to Redis.
func (s *Store) Save(ctx context.Context, platformID string, state domain.PlatformState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(platformID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), platformID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state from Redis.
func (s *Store) Load(ctx context.Context, platformID string) (domain.PlatformState, error) {
	val, err := s.client.Get(ctx, s.key(platformID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.PlatformState{}, domain.ErrStateNotFound
		}
		return domain.PlatformState{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.PlatformState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return domain.PlatformState{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}

// Delete removes the platform state.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(platformID))
	pipe.SRem(ctx, s.indexKey(), platformID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the platforms with saved state.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	return ids, nil
}
