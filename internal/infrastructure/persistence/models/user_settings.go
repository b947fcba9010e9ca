package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/settings"
)

// UserSettingsModel is one user's synchronized settings document.
type UserSettingsModel struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Settings  string    `gorm:"type:jsonb;not null"`
	Hash      string    `gorm:"type:char(64);not null"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserSettingsModel) TableName() string {
	return "user_settings"
}

// UserSettingsModelFromDomain builds a model from a document in canonical form
func UserSettingsModelFromDomain(userID uuid.UUID, doc settings.SyncDocument, now time.Time) (*UserSettingsModel, error) {
	if doc == nil {
		doc = settings.SyncDocument{}
	}
	canonical, err := doc.Canonical()
	if err != nil {
		return nil, err
	}
	hash, err := doc.Hash()
	if err != nil {
		return nil, err
	}
	return &UserSettingsModel{
		UserID:    userID,
		Settings:  string(canonical),
		Hash:      hash,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ToDomain decodes the stored document
func (m *UserSettingsModel) ToDomain() (*settings.StoredDocument, error) {
	doc := settings.SyncDocument{}
	if err := json.Unmarshal([]byte(m.Settings), &doc); err != nil {
		return nil, fmt.Errorf("decode settings for user %s: %w", m.UserID, err)
	}
	return &settings.StoredDocument{
		UserID:    m.UserID,
		Settings:  doc,
		Hash:      m.Hash,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
