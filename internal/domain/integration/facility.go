package integration

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// PlatformCode represents the vendor platform behind a facility
// ---------------------------------------------------------------------------

// PlatformCode represents the type of facility vendor platform
type PlatformCode string

const (
	// PlatformCodeResourceAPI is the vendor exposing a structured JSON resource API
	PlatformCodeResourceAPI PlatformCode = "RESOURCE_API"
	// PlatformCodeStorefront is the legacy vendor rendering an HTML storefront
	PlatformCodeStorefront PlatformCode = "STOREFRONT"
)

// IsValid returns true if the platform code is valid
func (c PlatformCode) IsValid() bool {
	switch c {
	case PlatformCodeResourceAPI, PlatformCodeStorefront:
		return true
	default:
		return false
	}
}

// String returns the string representation of the platform code
func (c PlatformCode) String() string {
	return string(c)
}

// ParsePlatformCode parses a platform code case-insensitively.
// Path-friendly aliases ("resource-api", "storefront") are accepted.
func ParsePlatformCode(s string) (PlatformCode, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	code := PlatformCode(normalized)
	if !code.IsValid() {
		return "", ErrPlatformNotSupported
	}
	return code, nil
}

// ---------------------------------------------------------------------------
// AuthState tracks a facility connection through its lifecycle
// ---------------------------------------------------------------------------

// AuthState is the adapter-side connection state for one facility
type AuthState string

const (
	AuthStateUnauthenticated   AuthState = "UNAUTHENTICATED"
	AuthStateAuthenticating    AuthState = "AUTHENTICATING"
	AuthStateAuthenticated     AuthState = "AUTHENTICATED"
	AuthStateSyncingActivities AuthState = "SYNCING_ACTIVITIES"
	AuthStateSyncingCatalog    AuthState = "SYNCING_CATALOG"
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// FacilityContext identifies which facility an adapter call targets
type FacilityContext struct {
	// FacilityID is the vendor-side facility identifier (URL slug or numeric id)
	FacilityID string `json:"facility_id"`
	// DisplayName is the known facility display name, used as a location fallback
	DisplayName string `json:"display_name,omitempty"`
	// BaseURL overrides the platform's configured base URL for this facility
	BaseURL string `json:"base_url,omitempty"`
}

// Validate validates the facility context
func (f FacilityContext) Validate() error {
	if strings.TrimSpace(f.FacilityID) == "" {
		return ErrInvalidFacility
	}
	return nil
}

// RosterMember is a child profile the account holder manages.
// Adapters may discover members but never create application profiles.
type RosterMember struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// ChildProfile is the application-side profile used as the matching corpus.
type ChildProfile = RosterMember

// FacilityCredential is a linked facility account.
// SessionToken is ephemeral and must never leave the device. SecretCredential
// is persisted only in local encrypted storage.
type FacilityCredential struct {
	Platform         PlatformCode `json:"platform"`
	FacilityID       string       `json:"facilityIdentifier"`
	FacilityName     string       `json:"facilityName,omitempty"`
	PrincipalEmail   string       `json:"principalEmail"`
	SecretCredential string       `json:"secretCredential,omitempty"`
	SessionToken     string       `json:"sessionToken,omitempty"`
	LinkedAt         time.Time    `json:"linkedAt"`
}

// CredentialKey identifies a linked facility inside the credentials map
func CredentialKey(platform PlatformCode, facilityID string) string {
	return string(platform) + ":" + facilityID
}

// Key returns the credential's CredentialKey
func (c *FacilityCredential) Key() string {
	return CredentialKey(c.Platform, c.FacilityID)
}

// Context returns the FacilityContext the credential was linked against
func (c *FacilityCredential) Context() FacilityContext {
	return FacilityContext{FacilityID: c.FacilityID, DisplayName: c.FacilityName}
}

// HasSession reports whether the credential holds a session token
func (c *FacilityCredential) HasSession() bool {
	return c != nil && c.SessionToken != ""
}

// AuthResult is returned by a successful Authenticate
type AuthResult struct {
	// SessionToken is the opaque cookie header string issued by the vendor
	SessionToken string `json:"session_token"`
	// RosterMembers always has at least one importable owner for RESOURCE_API
	RosterMembers []RosterMember `json:"roster_members"`
	FacilityName  string         `json:"facility_name"`
}

// Credential builds the credential to store locally after a successful login
func (r *AuthResult) Credential(platform PlatformCode, fc FacilityContext, email, secret string, now time.Time) FacilityCredential {
	name := r.FacilityName
	if name == "" {
		name = fc.DisplayName
	}
	return FacilityCredential{
		Platform:         platform,
		FacilityID:       fc.FacilityID,
		FacilityName:     name,
		PrincipalEmail:   email,
		SecretCredential: secret,
		SessionToken:     r.SessionToken,
		LinkedAt:         now,
	}
}
