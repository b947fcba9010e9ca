package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/settings"
)

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// InMemoryDocumentCache is a process-local DocumentCache. Entries are
// serialized so callers never share maps with the cache.
type InMemoryDocumentCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	now     func() time.Time
}

// NewInMemoryDocumentCache creates an empty cache
func NewInMemoryDocumentCache() *InMemoryDocumentCache {
	return &InMemoryDocumentCache{
		entries: make(map[uuid.UUID]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a live entry; expired entries are removed
func (c *InMemoryDocumentCache) Get(_ context.Context, userID uuid.UUID) (*settings.StoredDocument, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, false, nil
	}
	doc, err := decodeDocument(e.raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Set stores doc; a zero ttl never expires
func (c *InMemoryDocumentCache) Set(_ context.Context, doc *settings.StoredDocument, ttl time.Duration) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	e := memoryEntry{raw: raw}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[doc.UserID] = e
	c.mu.Unlock()
	return nil
}

// Invalidate drops the user's entry
func (c *InMemoryDocumentCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

// Close is a no-op
func (c *InMemoryDocumentCache) Close() error { return nil }

// Len returns the number of stored entries, expired or not
func (c *InMemoryDocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ DocumentCache = (*InMemoryDocumentCache)(nil)
