package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettings "github.com/rosterlink/backend/internal/application/settings"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/interfaces/http/dto"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSettingsService is a mock implementation of SettingsService
type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) Get(ctx context.Context, userID uuid.UUID) (settings.SyncDocument, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(settings.SyncDocument), args.Error(1)
}

func (m *MockSettingsService) Put(ctx context.Context, userID uuid.UUID, doc settings.SyncDocument) error {
	return m.Called(ctx, userID, doc).Error(0)
}

func (m *MockSettingsService) Delete(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func setupSyncRouter(svc SettingsService, user uuid.UUID, maxBody int64) *gin.Engine {
	h := NewSyncHandler(svc)
	router := gin.New()
	router.Use(middleware.BodyLimit(maxBody))
	api := router.Group("/api/v1")
	if user != uuid.Nil {
		api.Use(withUser(user))
	}
	api.GET("/sync", h.Get)
	api.PUT("/sync", h.Put)
	api.DELETE("/sync", h.Delete)
	return router
}

func TestSyncHandler_Get(t *testing.T) {
	user := uuid.New()

	t.Run("returns the stored document", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Get", mock.Anything, user).Return(settings.SyncDocument{
			"reminderMinutes": json.RawMessage(`30`),
		}, nil)

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodGet, "/api/v1/sync", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":{"settings":{"reminderMinutes":30}}}`, w.Body.String())
	})

	t.Run("settings is null before the first push", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Get", mock.Anything, user).Return(nil, nil)

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodGet, "/api/v1/sync", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":{"settings":null}}`, w.Body.String())
	})

	t.Run("no identity is 401", func(t *testing.T) {
		svc := new(MockSettingsService)
		w := doJSON(setupSyncRouter(svc, uuid.Nil, 1<<20), http.MethodGet, "/api/v1/sync", nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("repository failure is 500", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Get", mock.Anything, user).Return(nil, errors.New("connection reset"))

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodGet, "/api/v1/sync", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func TestSyncHandler_Put(t *testing.T) {
	user := uuid.New()

	t.Run("acknowledges with 204", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Put", mock.Anything, user, mock.MatchedBy(func(doc settings.SyncDocument) bool {
			return string(doc["theme"]) == `"dark"` && len(doc) == 2
		})).Return(nil)

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodPut, "/api/v1/sync",
			`{"settings":{"theme":"dark","childProfiles":[{"id":"p1","name":"Jane"}]}}`)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("missing settings is a validation error", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Put", mock.Anything, user, settings.SyncDocument(nil)).Return(appsettings.ErrMissingDocument)

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodPut, "/api/v1/sync", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})

	t.Run("oversized canonical document is 413", func(t *testing.T) {
		svc := new(MockSettingsService)
		svc.On("Put", mock.Anything, user, mock.Anything).Return(appsettings.ErrDocumentTooLarge)

		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodPut, "/api/v1/sync", `{"settings":{"notes":"x"}}`)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodeDocumentTooLarge, decodeResponse(t, w).Error.Code)
	})

	t.Run("body over the transport limit is 413", func(t *testing.T) {
		svc := new(MockSettingsService)
		body := `{"settings":{"notes":"` + strings.Repeat("x", 512) + `"}}`

		w := doJSON(setupSyncRouter(svc, user, 128), http.MethodPut, "/api/v1/sync", body)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		svc.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed JSON is 400", func(t *testing.T) {
		svc := new(MockSettingsService)
		w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodPut, "/api/v1/sync", `{"settings":[1,2]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSyncHandler_Delete(t *testing.T) {
	user := uuid.New()
	svc := new(MockSettingsService)
	svc.On("Delete", mock.Anything, user).Return(nil)

	w := doJSON(setupSyncRouter(svc, user, 1<<20), http.MethodDelete, "/api/v1/sync", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}
