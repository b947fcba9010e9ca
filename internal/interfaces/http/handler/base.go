package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/shared"
	"github.com/rosterlink/backend/internal/infrastructure/logger"
	"github.com/rosterlink/backend/internal/interfaces/http/dto"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// errMissingIdentity is returned when a protected route runs without claims
var errMissingIdentity = shared.NewDomainError(dto.ErrCodeUnauthorized, "Authentication required")

// integrationMessages are the client-facing messages per failure kind.
// Upstream detail stays in the logs.
var integrationMessages = map[integration.ErrorKind]string{
	integration.ErrorKindInvalidCredentials: "The facility rejected the email or password",
	integration.ErrorKindNeedsReauth:        "The facility session expired; sign in to the facility again",
	integration.ErrorKindUnreachable:        "The facility could not be reached; try again later",
	integration.ErrorKindUpstream:           "The facility returned an unexpected response",
	integration.ErrorKindSchemaMismatch:     "The facility returned data in an unrecognised format",
}

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// userID returns the authenticated user from the JWT claims
func userID(c *gin.Context) (uuid.UUID, error) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		return uuid.Nil, errMissingIdentity
	}
	id, err := claims.UserUUID()
	if err != nil {
		return uuid.Nil, errMissingIdentity
	}
	return id, nil
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with an explicit status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleBindError answers a failed ShouldBind* call
func (h *BaseHandler) HandleBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &validationErrors):
		middleware.HandleValidationError(c, err)
	case errors.As(err, &maxBytesErr):
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
	default:
		h.BadRequest(c, "Request body is not valid JSON")
	}
}

// HandleError maps service errors onto the response envelope:
// integration failures by kind, request errors to 400/404, domain errors by
// code, anything else to a logged 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	if kind := integration.KindOf(err); kind != "" {
		message, ok := integrationMessages[kind]
		if !ok {
			message = "The facility request failed"
		}
		logger.GetGinLogger(c).Warn("Facility call failed",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		h.ErrorWithCode(c, kind.String(), message)
		return
	}

	switch {
	case errors.Is(err, integration.ErrPlatformNotSupported):
		h.ErrorWithCode(c, dto.ErrCodePlatformUnsupported, "Platform is not supported")
		return
	case errors.Is(err, integration.ErrPlatformNotEnabled):
		h.ErrorWithCode(c, dto.ErrCodePlatformDisabled, "Platform is not enabled on this server")
		return
	case errors.Is(err, integration.ErrInvalidFacility),
		errors.Is(err, integration.ErrMissingSessionToken),
		errors.Is(err, integration.ErrMissingIdentity):
		h.ErrorWithCode(c, dto.ErrCodeValidation, err.Error())
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.ErrorWithCode(c, code, domainErr.Message)
		return
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		middleware.HandleValidationError(c, err)
		return
	}

	logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
	_ = c.Error(err)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}
