package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettingsRepository stores one settings document per user in Postgres.
type GormSettingsRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db, now: time.Now}
}

// WithTx returns a repository bound to tx
func (r *GormSettingsRepository) WithTx(tx *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: tx, now: r.now}
}

// FindByUser returns the user's document or settings.ErrDocumentNotFound
func (r *GormSettingsRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*settings.StoredDocument, error) {
	var model models.UserSettingsModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settings.ErrDocumentNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Replace upserts the user's document. A push whose hash matches the stored
// one leaves the row and its version untouched.
func (r *GormSettingsRepository) Replace(ctx context.Context, userID uuid.UUID, doc settings.SyncDocument) error {
	model, err := models.UserSettingsModelFromDomain(userID, doc, r.now().UTC())
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"settings":   model.Settings,
				"hash":       model.Hash,
				"updated_at": model.UpdatedAt,
				"version":    gorm.Expr("user_settings.version + 1"),
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "user_settings.hash <> excluded.hash"},
			}},
		}).
		Create(model).Error
}

// Delete removes the user's document. Deleting a missing document is not an error.
func (r *GormSettingsRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.UserSettingsModel{}).Error
}

var _ settings.Repository = (*GormSettingsRepository)(nil)
