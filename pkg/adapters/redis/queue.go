package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Queue is a TriggerSource backed by one Redis list per channel.
// Producers RPUSH JSON events; realtime channels LPOP them.
type Queue struct {
	client *backend.Client
	prefix string
}

// NewQueue creates a Redis queue.
func NewQueue(client *backend.Client, opts ...Option) *Queue {
	o := applyOptions(opts)
	return &Queue{client: client, prefix: o.prefix}
}

func (q *Queue) key(channel domain.ChannelID) string {
	return q.prefix + "events:" + string(channel)
}

// Push appends an event to the channel's list.
func (q *Queue) Push(ctx context.Context, event domain.IntegrationEvent) (domain.IntegrationEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Received.IsZero() {
		event.Received = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return event, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := q.client.RPush(ctx, q.key(event.Channel), data).Err(); err != nil {
		return event, fmt.Errorf("failed to push event: %w", err)
	}
	return event, nil
}

// PollOnce pops the oldest event of the channel.
func (q *Queue) PollOnce(ctx context.Context, channel domain.ChannelID) (domain.IntegrationEvent, error) {
	val, err := q.client.LPop(ctx, q.key(channel)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.IntegrationEvent{}, domain.ErrNoEvent
		}
		return domain.IntegrationEvent{}, fmt.Errorf("failed to pop event: %w", err)
	}

	var event domain.IntegrationEvent
	if err := json.Unmarshal([]byte(val), &event); err != nil {
		return domain.IntegrationEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Channel == "" {
		event.Channel = channel
	}
	return event, nil
}
