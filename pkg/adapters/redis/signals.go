package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/weave/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Signals is a SignalSource backed by a Redis hash of platform id -> urgency.
// External tooling (CI, VCS hooks) raises flags with HSET.
type Signals struct {
	client *backend.Client
	prefix string
}

// NewSignals creates a Redis signal board.
func NewSignals(client *backend.Client, opts ...Option) *Signals {
	o := applyOptions(opts)
	return &Signals{client: client, prefix: o.prefix}
}

func (s *Signals) key() string {
	return s.prefix + "signals"
}

// Raise flags a platform.
func (s *Signals) Raise(ctx context.Context, trigger domain.Trigger) error {
	return s.client.HSet(ctx, s.key(), trigger.PlatformID, string(trigger.Urgency)).Err()
}

// Consume atomically reads and clears every flag.
func (s *Signals) Consume(ctx context.Context) ([]domain.Trigger, error) {
	pipe := s.client.TxPipeline()
	all := pipe.HGetAll(ctx, s.key())
	pipe.Del(ctx, s.key())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to consume signals: %w", err)
	}

	out := make([]domain.Trigger, 0, len(all.Val()))
	for id, urgency := range all.Val() {
		out = append(out, domain.Trigger{
			PlatformID: id,
			Urgency:    domain.Urgency(urgency),
			Reason:     "external signal",
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
}
