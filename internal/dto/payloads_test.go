package dto_test

import (
	"testing"
	"time"

	"github.com/aretw0/weave/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("Weak Types", func(t *testing.T) {
		var p dto.DataPayload
		err := dto.Decode(map[string]any{
			"entity":  "user",
			"id":      42,
			"version": "7",
			"fields":  map[string]any{"name": "Ada"},
		}, &p)
		require.NoError(t, err)
		assert.Equal(t, "user", p.Entity)
		assert.Equal(t, "42", p.ID)
		assert.Equal(t, int64(7), p.Version)
		assert.Equal(t, "Ada", p.Fields["name"])
	})

	t.Run("Timestamps", func(t *testing.T) {
		var p dto.AuthPayload
		err := dto.Decode(map[string]any{
			"user_id":    "u1",
			"expires_at": "2026-06-01T10:00:00Z",
		}, &p)
		require.NoError(t, err)
		assert.True(t, p.ExpiresAt.Equal(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("Invalid", func(t *testing.T) {
		var p dto.AuthPayload
		err := dto.Decode(map[string]any{"expires_at": "next tuesday"}, &p)
		assert.Error(t, err)
	})
}
