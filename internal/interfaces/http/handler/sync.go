package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettings "github.com/rosterlink/backend/internal/application/settings"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/interfaces/http/dto"
)

// SettingsService stores one sync document per user
type SettingsService interface {
	Get(ctx context.Context, userID uuid.UUID) (settings.SyncDocument, error)
	Put(ctx context.Context, userID uuid.UUID, doc settings.SyncDocument) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

var _ SettingsService = (*appsettings.Service)(nil)

// SyncHandler serves the settings sync document of the authenticated user
type SyncHandler struct {
	BaseHandler
	service SettingsService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(service SettingsService) *SyncHandler {
	return &SyncHandler{service: service}
}

// Get handles GET /api/v1/sync. Settings is null until the first push.
func (h *SyncHandler) Get(c *gin.Context) {
	id, err := userID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	doc, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.SyncDocumentBody{Settings: doc})
}

// Put handles PUT /api/v1/sync and overwrites the stored document
func (h *SyncHandler) Put(c *gin.Context) {
	id, err := userID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var body dto.SyncDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleBindError(c, err)
		return
	}
	if err := h.service.Put(c.Request.Context(), id, body.Settings); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Delete handles DELETE /api/v1/sync
func (h *SyncHandler) Delete(c *gin.Context) {
	id, err := userID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
