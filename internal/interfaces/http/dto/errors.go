package dto

import "net/http"

// Error codes returned in ErrorInfo.Code. Integration failures reuse the
// integration.ErrorKind names so clients can branch on one vocabulary.
const (
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeDocumentTooLarge    = "DOCUMENT_TOO_LARGE"
	ErrCodeRequestTooLarge     = "REQUEST_TOO_LARGE"
	ErrCodePlatformUnsupported = "PLATFORM_NOT_SUPPORTED"
	ErrCodePlatformDisabled    = "PLATFORM_NOT_ENABLED"
)

// Integration error codes
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeNeedsReauth        = "NEEDS_REAUTH"
	ErrCodeUnreachable        = "UNREACHABLE"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeSchemaMismatch     = "UPSTREAM_SCHEMA_MISMATCH"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeTokenExpired:        http.StatusUnauthorized,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeDocumentTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodePlatformUnsupported: http.StatusNotFound,
	ErrCodePlatformDisabled:    http.StatusNotFound,

	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	// The caller holds a valid API token; only the facility session is stale
	ErrCodeNeedsReauth:    http.StatusConflict,
	ErrCodeUnreachable:    http.StatusServiceUnavailable,
	ErrCodeUpstream:       http.StatusBadGateway,
	ErrCodeSchemaMismatch: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps shared domain error codes onto API codes
var LegacyErrorCodeMapping = map[string]string{
	"INVALID_INPUT": ErrCodeValidation,
	"INVALID_STATE": ErrCodeBadRequest,
}

// NormalizeErrorCode converts a domain error code to its API form.
// Codes already in API form are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
