package cache

import (
	"context"
	"fmt"

	"github.com/rosterlink/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// FactoryOption configures NewDocumentCache
type FactoryOption func(*factory)

type factory struct {
	logger        *zap.Logger
	allowFallback bool
}

// WithLogger sets the logger used to report the chosen backend
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// a process-local cache. Default true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowFallback = allow
	}
}

// NewDocumentCache returns a Redis cache when enabled and reachable, an
// in-memory cache otherwise.
func NewDocumentCache(ctx context.Context, cfg config.RedisConfig, opts ...FactoryOption) (DocumentCache, error) {
	f := &factory{logger: zap.NewNop(), allowFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	if !cfg.Enabled {
		f.logger.Info("Redis disabled, using in-memory settings cache")
		return NewInMemoryDocumentCache(), nil
	}

	c, err := NewRedisDocumentCache(ctx, RedisConfig{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis settings cache", zap.String("addr", cfg.Addr()))
		return c, nil
	}
	if !f.allowFallback {
		return nil, fmt.Errorf("redis required for settings cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory settings cache. "+
		"Instances will not see each other's invalidations until the TTL expires.",
		zap.Error(err),
	)
	return NewInMemoryDocumentCache(), nil
}
