package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Facility Integration Errors
// ---------------------------------------------------------------------------

var (
	// Taxonomy sentinels, matched through errors.Is on an *IntegrationError
	ErrInvalidCredentials     = errors.New("integration: invalid credentials")
	ErrNeedsReauth            = errors.New("integration: session expired, re-authentication required")
	ErrUnreachable            = errors.New("integration: facility unreachable")
	ErrUpstream               = errors.New("integration: upstream request failed")
	ErrUpstreamSchemaMismatch = errors.New("integration: upstream schema mismatch")
	ErrPartialImport          = errors.New("integration: partial import")

	// Request errors
	ErrPlatformNotSupported = errors.New("integration: platform not supported")
	ErrPlatformNotEnabled   = errors.New("integration: platform not enabled")
	ErrInvalidFacility      = errors.New("integration: facility identifier is required")
	ErrMissingSessionToken  = errors.New("integration: session token is required")
	ErrMissingIdentity      = errors.New("integration: identity and secret are required")

	errMissingStart   = errors.New("start date is missing")
	errEndBeforeStart = errors.New("end date is before start date")
	errNegativePrice  = errors.New("price is negative")
)

// ErrorKind classifies an integration failure for the caller.
type ErrorKind string

const (
	// ErrorKindInvalidCredentials means the login was rejected. Do not retry automatically.
	ErrorKindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	// ErrorKindNeedsReauth means the session expired mid-use. Prompt the user to reconnect.
	ErrorKindNeedsReauth ErrorKind = "NEEDS_REAUTH"
	// ErrorKindUnreachable means a network, DNS or timeout failure. Safe to retry later.
	ErrorKindUnreachable ErrorKind = "UNREACHABLE"
	// ErrorKindUpstream is a non-2xx vendor response that is not an auth failure.
	ErrorKindUpstream ErrorKind = "UPSTREAM_ERROR"
	// ErrorKindSchemaMismatch means a parse assumption about vendor data failed.
	ErrorKindSchemaMismatch ErrorKind = "UPSTREAM_SCHEMA_MISMATCH"
	// ErrorKindPartialImport marks a single item failure inside a batch.
	ErrorKindPartialImport ErrorKind = "PARTIAL_IMPORT"
)

// Sentinel returns the sentinel error matching the kind
func (k ErrorKind) Sentinel() error {
	switch k {
	case ErrorKindInvalidCredentials:
		return ErrInvalidCredentials
	case ErrorKindNeedsReauth:
		return ErrNeedsReauth
	case ErrorKindUnreachable:
		return ErrUnreachable
	case ErrorKindUpstream:
		return ErrUpstream
	case ErrorKindSchemaMismatch:
		return ErrUpstreamSchemaMismatch
	case ErrorKindPartialImport:
		return ErrPartialImport
	default:
		return nil
	}
}

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	return string(k)
}

// IntegrationError is the typed error every adapter returns.
type IntegrationError struct {
	Kind ErrorKind
	// Op is the adapter operation that failed, e.g. "storefront.login"
	Op string
	// Status is the upstream HTTP status when one was received, 0 otherwise
	Status int
	Err    error
}

// NewError creates a new IntegrationError
func NewError(kind ErrorKind, op string, status int, err error) *IntegrationError {
	return &IntegrationError{Kind: kind, Op: op, Status: status, Err: err}
}

// Error implements the error interface
func (e *IntegrationError) Error() string {
	msg := e.Kind.Sentinel()
	text := string(e.Kind)
	if msg != nil {
		text = msg.Error()
	}
	if e.Op != "" {
		text = e.Op + ": " + text
	}
	if e.Status != 0 {
		text = fmt.Sprintf("%s (HTTP %d)", text, e.Status)
	}
	if e.Err != nil {
		text = text + ": " + e.Err.Error()
	}
	return text
}

// Unwrap returns the underlying cause
func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *IntegrationError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}

// KindOf extracts the ErrorKind from err, or "" if err is not an IntegrationError.
func KindOf(err error) ErrorKind {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsRetryable reports whether the failure is transient and safe to retry later.
// Credential and reauth failures need the user and are never retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrorKindUnreachable, ErrorKindUpstream:
		return true
	default:
		return false
	}
}

// ItemError records one failed record inside a batch import.
type ItemError struct {
	// Ref identifies the record, e.g. an order URL or upstream id
	Ref     string    `json:"ref"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewItemError builds an ItemError from an error, classifying it when possible.
func NewItemError(ref string, err error) ItemError {
	kind := KindOf(err)
	if kind == "" {
		kind = ErrorKindPartialImport
	}
	return ItemError{Ref: ref, Kind: kind, Message: err.Error()}
}
