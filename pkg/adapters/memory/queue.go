package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/google/uuid"
)

// Queue is an in-process TriggerSource. Webhooks push events, realtime channels poll them.
type Queue struct {
	mu      sync.Mutex
	pending map[domain.ChannelID][]domain.IntegrationEvent
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[domain.ChannelID][]domain.IntegrationEvent)}
}

// Push enqueues an event. Missing ids and timestamps are filled in.
func (q *Queue) Push(ctx context.Context, event domain.IntegrationEvent) (domain.IntegrationEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Received.IsZero() {
		event.Received = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[event.Channel] = append(q.pending[event.Channel], event)
	return event, nil
}

// PollOnce pops the oldest pending event of the channel.
func (q *Queue) PollOnce(ctx context.Context, channel domain.ChannelID) (domain.IntegrationEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := q.pending[channel]
	if len(events) == 0 {
		return domain.IntegrationEvent{}, domain.ErrNoEvent
	}
	q.pending[channel] = events[1:]
	return events[0], nil
}

// Len returns the number of events pending on a channel.
func (q *Queue) Len(channel domain.ChannelID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[channel])
}
