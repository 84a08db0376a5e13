package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Deduplicator records delivered event ids with SET NX so duplicate deliveries
// are dropped across orchestrator replicas.
type Deduplicator struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewDeduplicator creates a deduplicator; ids are forgotten after ttl.
func NewDeduplicator(client *backend.Client, ttl time.Duration, opts ...Option) *Deduplicator {
	o := applyOptions(opts)
	return &Deduplicator{client: client, prefix: o.prefix, ttl: ttl}
}

// FirstSeen returns true the first time an id is offered within the ttl.
func (d *Deduplicator) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(id), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event id: %w", err)
	}
	return ok, nil
}

// Forget deletes the record of an id.
func (d *Deduplicator) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to release event id: %w", err)
	}
	return nil
}

func (d *Deduplicator) key(id string) string {
	return d.prefix + "seen:" + id
}
