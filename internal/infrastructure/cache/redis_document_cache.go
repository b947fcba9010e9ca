package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rosterlink/backend/internal/domain/settings"
)

const defaultKeyPrefix = "rosterlink:settings:"

// RedisDocumentCache keeps documents in Redis so every API instance shares them.
type RedisDocumentCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisDocumentCache connects and pings Redis
func NewRedisDocumentCache(ctx context.Context, cfg RedisConfig) (*RedisDocumentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDocumentCacheWithClient(client, ""), nil
}

// NewRedisDocumentCacheWithClient wraps an existing client
func NewRedisDocumentCacheWithClient(client redis.UniversalClient, keyPrefix string) *RedisDocumentCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisDocumentCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisDocumentCache) key(userID uuid.UUID) string {
	return c.keyPrefix + userID.String()
}

// Get returns the cached document
func (c *RedisDocumentCache) Get(ctx context.Context, userID uuid.UUID) (*settings.StoredDocument, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached settings: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		// Unreadable entries are treated as a miss and dropped
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, false, nil
	}
	return doc, true, nil
}

// Set stores doc with ttl
func (c *RedisDocumentCache) Set(ctx context.Context, doc *settings.StoredDocument, ttl time.Duration) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(doc.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache settings: %w", err)
	}
	return nil
}

// Invalidate drops the user's entry
func (c *RedisDocumentCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached settings: %w", err)
	}
	return nil
}

// Close closes the client
func (c *RedisDocumentCache) Close() error {
	return c.client.Close()
}

var _ DocumentCache = (*RedisDocumentCache)(nil)
