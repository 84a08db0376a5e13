package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Available(t *testing.T) {
	r, err := registry.New([]domain.Platform{
		{ID: "web", Technology: domain.TechWeb},
		{ID: "cloud", Technology: domain.TechCloud},
	})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	assert.Empty(t, r.Available(), "platforms start unknown")

	require.NoError(t, r.SetHealth(ctx, "web", domain.StatusAvailable, now))
	require.NoError(t, r.SetHealth(ctx, "cloud", domain.StatusUnavailable, now))

	available := r.Available()
	require.Len(t, available, 1)
	assert.Equal(t, "web", available[0].ID)
	assert.False(t, r.IsAvailable("cloud"))

	require.NoError(t, r.SetHealth(ctx, "cloud", domain.StatusAvailable, now))
	assert.True(t, r.IsAvailable("cloud"))
	assert.Len(t, r.Available(), 2)
}

func TestRegistry_UnknownPlatform(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	_, err = r.Get("ghost")
	assert.ErrorIs(t, err, domain.ErrPlatformNotFound)

	err = r.MarkSynced(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, domain.ErrPlatformNotFound)
}

func TestRegistry_DuplicateID(t *testing.T) {
	_, err := registry.New([]domain.Platform{{ID: "web"}, {ID: "web"}})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestRegistry_PersistsAndRestoresLastSync(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	declared := []domain.Platform{{ID: "desktop", Technology: domain.TechDesktop}}

	first, err := registry.New(declared, registry.WithStore(store))
	require.NoError(t, err)
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, first.MarkSynced(ctx, "desktop", synced))

	second, err := registry.New(declared, registry.WithStore(store))
	require.NoError(t, err)
	require.NoError(t, second.Restore(ctx))

	p, err := second.Get("desktop")
	require.NoError(t, err)
	require.NotNil(t, p.LastSync)
	assert.True(t, synced.Equal(*p.LastSync))
	assert.Equal(t, domain.StatusUnknown, p.Status, "status is re-probed, not restored")
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r, err := registry.New([]domain.Platform{{ID: "web", Dependents: []string{"ext"}}, {ID: "ext"}})
	require.NoError(t, err)

	p, _ := r.Get("web")
	p.Status = domain.StatusError

	again, _ := r.Get("web")
	assert.Equal(t, domain.StatusUnknown, again.Status)
}
