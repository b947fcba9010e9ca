package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDocumentCache(t *testing.T) {
	ctx := context.Background()

	t.Run("returns copies", func(t *testing.T) {
		c := NewInMemoryDocumentCache()
		userID := uuid.New()
		doc := storedDoc(userID)
		require.NoError(t, c.Set(ctx, doc, 0))

		got, hit, err := c.Get(ctx, userID)
		require.NoError(t, err)
		require.True(t, hit)
		got.Settings["theme"] = []byte(`"light"`)

		again, _, _ := c.Get(ctx, userID)
		assert.JSONEq(t, `"dark"`, string(again.Settings["theme"]))
		assert.True(t, doc.UpdatedAt.Equal(again.UpdatedAt))
	})

	t.Run("expires after ttl", func(t *testing.T) {
		c := NewInMemoryDocumentCache()
		now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }
		userID := uuid.New()
		require.NoError(t, c.Set(ctx, storedDoc(userID), time.Minute))

		_, hit, _ := c.Get(ctx, userID)
		assert.True(t, hit)

		now = now.Add(time.Minute)
		_, hit, _ = c.Get(ctx, userID)
		assert.False(t, hit)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("miss", func(t *testing.T) {
		c := NewInMemoryDocumentCache()
		doc, hit, err := c.Get(ctx, uuid.New())
		assert.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, doc)
	})
}

func TestNewDocumentCache(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled redis uses memory", func(t *testing.T) {
		c, err := NewDocumentCache(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.IsType(t, &InMemoryDocumentCache{}, c)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		c, err := NewDocumentCache(ctx, config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
		require.NoError(t, err)
		assert.IsType(t, &InMemoryDocumentCache{}, c)
	})

	t.Run("fallback can be refused", func(t *testing.T) {
		_, err := NewDocumentCache(ctx, config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false))
		assert.Error(t, err)
	})
}
