package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOPerChannel(t *testing.T) {
	q := memory.NewQueue()
	ctx := context.Background()

	first, err := q.Push(ctx, domain.IntegrationEvent{Channel: domain.ChannelAuth, Action: "login"})
	require.NoError(t, err)
	q.Push(ctx, domain.IntegrationEvent{Channel: domain.ChannelAuth, Action: "logout"})
	q.Push(ctx, domain.IntegrationEvent{Channel: domain.ChannelData, Action: "update"})

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Received.IsZero())
	assert.Equal(t, 2, q.Len(domain.ChannelAuth))

	ev, err := q.PollOnce(ctx, domain.ChannelAuth)
	require.NoError(t, err)
	assert.Equal(t, "login", ev.Action)

	ev, err = q.PollOnce(ctx, domain.ChannelAuth)
	require.NoError(t, err)
	assert.Equal(t, "logout", ev.Action)

	_, err = q.PollOnce(ctx, domain.ChannelAuth)
	assert.ErrorIs(t, err, domain.ErrNoEvent)
}

func TestSignals_KeepsHighestUrgency(t *testing.T) {
	s := memory.NewSignals()
	ctx := context.Background()
	require.NoError(t, s.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh, Reason: "critical patch"}))
	require.NoError(t, s.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyLow}))
	require.NoError(t, s.Raise(ctx, domain.Trigger{PlatformID: "cloud", Urgency: domain.UrgencyMedium}))

	triggers, err := s.Consume(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "cloud", triggers[0].PlatformID)
	assert.Equal(t, domain.UrgencyHigh, triggers[1].Urgency)

	triggers, err = s.Consume(context.Background())
	require.NoError(t, err)
	assert.Empty(t, triggers)
}

func TestDeduplicator(t *testing.T) {
	d := memory.NewDeduplicator()
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, "evt-1"))
	retried, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, retried)
}
