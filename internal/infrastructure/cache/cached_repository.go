package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultSettingsTTL bounds how stale a cached document can be when another
// instance wrote it without invalidating this cache.
const DefaultSettingsTTL = 5 * time.Minute

// CachedSettingsRepository is a read-through cache in front of a
// settings.Repository. Writes go to the repository first, then invalidate.
// Cache failures are logged and never fail the call.
type CachedSettingsRepository struct {
	next   settings.Repository
	cache  DocumentCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSettingsRepository wraps next with cache
func NewCachedSettingsRepository(next settings.Repository, cache DocumentCache, ttl time.Duration, log *zap.Logger) *CachedSettingsRepository {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedSettingsRepository{next: next, cache: cache, ttl: ttl, logger: log}
}

// FindByUser serves from cache, filling it on a miss. Not-found is not cached.
func (r *CachedSettingsRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*settings.StoredDocument, error) {
	doc, hit, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.warn(ctx, "Settings cache read failed", userID, err)
	}
	if hit {
		return doc, nil
	}

	doc, err = r.next.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, doc, r.ttl); err != nil {
		r.warn(ctx, "Settings cache fill failed", userID, err)
	}
	return doc, nil
}

// Replace writes through and invalidates
func (r *CachedSettingsRepository) Replace(ctx context.Context, userID uuid.UUID, doc settings.SyncDocument) error {
	if err := r.next.Replace(ctx, userID, doc); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

// Delete deletes and invalidates
func (r *CachedSettingsRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := r.next.Delete(ctx, userID); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *CachedSettingsRepository) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.warn(ctx, "Settings cache invalidation failed", userID, err)
	}
}

func (r *CachedSettingsRepository) warn(ctx context.Context, msg string, userID uuid.UUID, err error) {
	r.logger.Warn(msg,
		zap.String("user_id", userID.String()),
		zap.String("trace_id", logger.GetTraceID(ctx)),
		zap.Error(err),
	)
}

var _ settings.Repository = (*CachedSettingsRepository)(nil)
