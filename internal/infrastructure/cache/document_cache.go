// Package cache holds read-through caches for server-side settings documents.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/settings"
)

// DocumentCache stores StoredDocuments by user id. A miss returns (nil, false, nil).
type DocumentCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*settings.StoredDocument, bool, error)
	Set(ctx context.Context, doc *settings.StoredDocument, ttl time.Duration) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
	Close() error
}

// cachedDocument is the serialized form kept in the cache
type cachedDocument struct {
	UserID    uuid.UUID             `json:"user_id"`
	Settings  settings.SyncDocument `json:"settings"`
	Hash      string                `json:"hash"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func encodeDocument(doc *settings.StoredDocument) ([]byte, error) {
	return json.Marshal(cachedDocument{
		UserID:    doc.UserID,
		Settings:  doc.Settings,
		Hash:      doc.Hash,
		UpdatedAt: doc.UpdatedAt,
	})
}

func decodeDocument(raw []byte) (*settings.StoredDocument, error) {
	var c cachedDocument
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.Settings == nil {
		c.Settings = settings.SyncDocument{}
	}
	return &settings.StoredDocument{
		UserID:    c.UserID,
		Settings:  c.Settings,
		Hash:      c.Hash,
		UpdatedAt: c.UpdatedAt,
	}, nil
}
