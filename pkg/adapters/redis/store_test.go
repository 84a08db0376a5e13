package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/weave/pkg/adapters/redis"
	"github.com/aretw0/weave/pkg/domain"
	contract "github.com/aretw0/weave/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewStore(client)
	contract.RunStateStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewStore(client, redis.WithPrefix("test:"))

	err := store.Save(context.Background(), "web", domain.PlatformState{Status: domain.StatusAvailable})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:platform:web"))
	members, err := mr.Members("test:platforms")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, members)
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "web", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:web"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:web"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker1 := redis.NewLocker(client)
	locker2 := redis.NewLocker(client)
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "cloud", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "cloud", 5*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "cloud", 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, unlock2(ctx))
}

func TestRedisQueue_PushPoll(t *testing.T) {
	_, client := newClient(t)
	q := redis.NewQueue(client)
	ctx := context.Background()

	pushed, err := q.Push(ctx, domain.IntegrationEvent{
		Channel: domain.ChannelData,
		Action:  "update",
		Data:    map[string]any{"entity": "user"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pushed.ID)

	ev, err := q.PollOnce(ctx, domain.ChannelData)
	require.NoError(t, err)
	assert.Equal(t, pushed.ID, ev.ID)
	assert.Equal(t, "update", ev.Action)
	assert.Equal(t, "user", ev.Data["entity"])

	_, err = q.PollOnce(ctx, domain.ChannelData)
	assert.ErrorIs(t, err, domain.ErrNoEvent)
}

func TestRedisDeduplicator(t *testing.T) {
	mr, client := newClient(t)
	d := redis.NewDeduplicator(client, time.Minute)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	mr.FastForward(2 * time.Minute)

	expired, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, d.Forget(ctx, "evt-1"))
	assert.False(t, mr.Exists("weave:seen:evt-1"))
	released, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRedisSignals_Consume(t *testing.T) {
	_, client := newClient(t)
	s := redis.NewSignals(client)
	ctx := context.Background()

	require.NoError(t, s.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh}))
	require.NoError(t, s.Raise(ctx, domain.Trigger{PlatformID: "cloud", Urgency: domain.UrgencyMedium}))

	triggers, err := s.Consume(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "cloud", triggers[0].PlatformID)
	assert.Equal(t, domain.UrgencyHigh, triggers[1].Urgency)

	triggers, err = s.Consume(ctx)
	require.NoError(t, err)
	assert.Empty(t, triggers)
}
