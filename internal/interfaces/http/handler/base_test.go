package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rosterlink/backend/internal/application/settings"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/shared"
	"github.com/rosterlink/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", integration.NewError(integration.ErrorKindInvalidCredentials, "storefront.login", 0, nil), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"needs reauth", integration.NewError(integration.ErrorKindNeedsReauth, "resource_api.list_registrations", 401, nil), http.StatusConflict, "NEEDS_REAUTH"},
		{"unreachable", integration.NewError(integration.ErrorKindUnreachable, "storefront.login", 0, errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, "UNREACHABLE"},
		{"upstream", integration.NewError(integration.ErrorKindUpstream, "resource_api.list_classes", 500, nil), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"schema mismatch", integration.NewError(integration.ErrorKindSchemaMismatch, "storefront.parse_orders", 0, nil), http.StatusBadGateway, "UPSTREAM_SCHEMA_MISMATCH"},
		{"wrapped integration error", fmt.Errorf("import: %w", integration.NewError(integration.ErrorKindNeedsReauth, "op", 0, nil)), http.StatusConflict, "NEEDS_REAUTH"},
		{"platform not supported", integration.ErrPlatformNotSupported, http.StatusNotFound, dto.ErrCodePlatformUnsupported},
		{"platform not enabled", integration.ErrPlatformNotEnabled, http.StatusNotFound, dto.ErrCodePlatformDisabled},
		{"missing session token", integration.ErrMissingSessionToken, http.StatusBadRequest, dto.ErrCodeValidation},
		{"document too large", settings.ErrDocumentTooLarge, http.StatusRequestEntityTooLarge, dto.ErrCodeDocumentTooLarge},
		{"missing document", settings.ErrMissingDocument, http.StatusBadRequest, dto.ErrCodeValidation},
		{"shared not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"shared invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeValidation},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestBaseHandler_HandleError_HidesUpstreamDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	err := integration.NewError(integration.ErrorKindUpstream, "storefront.order_detail", 500, errors.New("<html>stack trace</html>"))
	(&BaseHandler{}).HandleError(c, err)

	assert.NotContains(t, w.Body.String(), "stack trace")
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	(&BaseHandler{}).HandleError(c, nil)
	assert.Empty(t, w.Body.String())
}
