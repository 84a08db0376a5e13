package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// TriggerSource is polled by realtime channels.
// PollOnce returns domain.ErrNoEvent when nothing is pending.
type TriggerSource interface {
	PollOnce(ctx context.Context, channel domain.ChannelID) (domain.IntegrationEvent, error)
}

// StatusReporter answers the synchronization status of a platform on a polling channel.
type StatusReporter interface {
	SyncStatus(ctx context.Context, platformID string, channel domain.ChannelID) (domain.SyncStatus, error)
}

// SignalSource reports platforms flagged for urgent redeployment.
// Consume clears the returned flags.
type SignalSource interface {
	Consume(ctx context.Context) ([]domain.Trigger, error)
}

// Deduplicator records event ids. FirstSeen returns true exactly once per id
// until Forget releases it again, which lets a failed delivery be retried.
type Deduplicator interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// EventPublisher accepts integration events for realtime channels.
// Missing ids and timestamps are filled in and the stored event is returned.
type EventPublisher interface {
	Push(ctx context.Context, event domain.IntegrationEvent) (domain.IntegrationEvent, error)
}

// SignalPublisher flags a platform for redeployment.
type SignalPublisher interface {
	Raise(ctx context.Context, trigger domain.Trigger) error
}
