package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store ports.StateStore) {
	ctx := context.Background()
	platformID := "contract-platform-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		state := domain.PlatformState{
			Status:   domain.StatusAvailable,
			LastSync: &synced,
		}

		err := store.Save(ctx, platformID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, platformID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.StatusAvailable, loaded.Status)
		require.NotNil(t, loaded.LastSync)
		assert.True(t, synced.Equal(*loaded.LastSync))
		assert.Nil(t, loaded.LastCheck)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+platformID)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, platformID, domain.PlatformState{Status: domain.StatusError})
		require.NoError(t, err)

		err = store.Delete(ctx, platformID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, platformID)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "Load after Delete should return ErrStateNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := platformID + "-1"
		id2 := platformID + "-2"
		_ = store.Save(ctx, id1, domain.PlatformState{Status: domain.StatusUnknown})
		_ = store.Save(ctx, id2, domain.PlatformState{Status: domain.StatusUnknown})

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
