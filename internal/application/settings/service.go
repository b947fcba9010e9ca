// Package settings serves the remote side of settings synchronization:
// one SyncDocument per user, overwritten on every push.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	domain "github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/domain/shared"
	"github.com/rosterlink/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultMaxDocumentBytes bounds the canonical size of a stored document
const DefaultMaxDocumentBytes int64 = 256 << 10

var (
	ErrMissingDocument  = shared.NewDomainError("VALIDATION_ERROR", "settings document is required")
	ErrDocumentTooLarge = shared.NewDomainError("DOCUMENT_TOO_LARGE", "settings document exceeds the size limit")
	ErrMissingUser      = shared.NewDomainError("UNAUTHORIZED", "user identity is required")
)

// ServiceConfig contains configuration for the settings service
type ServiceConfig struct {
	MaxDocumentBytes int64
}

// Service reads and replaces users' sync documents
type Service struct {
	repo   domain.Repository
	policy domain.Policy
	config ServiceConfig
	logger *zap.Logger
}

// NewService creates a new settings Service
func NewService(repo domain.Repository, policy domain.Policy, config ServiceConfig, logger *zap.Logger) *Service {
	if config.MaxDocumentBytes <= 0 {
		config.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, policy: policy, config: config, logger: logger}
}

// Get returns the user's document, or nil when the user never pushed
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (domain.SyncDocument, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "settings", "get",
		telemetry.WithAttribute(telemetry.SpanAttrUserID, userID.String()))
	defer span.End()

	stored, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load settings: %w", err)
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrFieldCount, len(stored.Settings))
	return stored.Settings, nil
}

// Put overwrites the user's document. Fields outside the whitelist are
// dropped and credential secrets are stripped before anything is stored.
func (s *Service) Put(ctx context.Context, userID uuid.UUID, doc domain.SyncDocument) error {
	if userID == uuid.Nil {
		return ErrMissingUser
	}
	if doc == nil {
		return ErrMissingDocument
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "settings", "put",
		telemetry.WithAttribute(telemetry.SpanAttrUserID, userID.String()))
	defer span.End()

	outbound, err := s.policy.Outbound(doc)
	if err != nil {
		return shared.NewDomainError("VALIDATION_ERROR", "settings document contains invalid JSON").WithCause(err)
	}
	canonical, err := outbound.Canonical()
	if err != nil {
		return shared.NewDomainError("VALIDATION_ERROR", "settings document contains invalid JSON").WithCause(err)
	}
	if int64(len(canonical)) > s.config.MaxDocumentBytes {
		return ErrDocumentTooLarge
	}

	if dropped := len(doc) - len(outbound); dropped > 0 {
		s.logger.Debug("Dropped non-synced settings fields",
			zap.String("user_id", userID.String()),
			zap.Int("dropped", dropped),
		)
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrFieldCount, len(outbound))

	if err := s.repo.Replace(ctx, userID, outbound); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Delete removes the user's document
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrMissingUser
	}
	if err := s.repo.Delete(ctx, userID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
