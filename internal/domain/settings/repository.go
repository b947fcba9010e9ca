package settings

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StoredDocument is the server-side record of one user's document
type StoredDocument struct {
	UserID    uuid.UUID
	Settings  SyncDocument
	Hash      string
	UpdatedAt time.Time
}

// Repository stores one SyncDocument per user identity.
type Repository interface {
	// FindByUser returns the user's document
	// Returns ErrDocumentNotFound if the user never pushed
	FindByUser(ctx context.Context, userID uuid.UUID) (*StoredDocument, error)

	// Replace overwrites the user's document, creating it on first push
	Replace(ctx context.Context, userID uuid.UUID, doc SyncDocument) error

	// Delete removes the user's document
	Delete(ctx context.Context, userID uuid.UUID) error
}

// RemoteStore is the client's view of the remote document store.
type RemoteStore interface {
	// Fetch returns the remote document, or nil when none exists
	Fetch(ctx context.Context) (SyncDocument, error)

	// Replace sends a full-document replace
	Replace(ctx context.Context, doc SyncDocument) error
}

// Change describes a local state mutation delivered to observers
type Change struct {
	// Fields lists the field names written
	Fields []string
	// Remote is true when the write came from a pull merge
	Remote bool
}

// StateStore is the device's observable local state.
// Observers run synchronously inside the write that triggered them.
type StateStore interface {
	// Snapshot returns a copy of the current local state
	Snapshot() SyncDocument

	// Update writes fields and notifies observers before returning
	Update(ctx context.Context, fields SyncDocument, remote bool) error

	// Subscribe registers an observer and returns its unsubscribe func
	Subscribe(fn func(Change)) (unsubscribe func())
}
