package facility

import (
	"time"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// AuthenticateInput carries the credentials for one facility login
type AuthenticateInput struct {
	Platform integration.PlatformCode
	Facility integration.FacilityContext
	Email    string
	Secret   string
}

// ImportActivitiesInput selects the activities to import
type ImportActivitiesInput struct {
	Platform     integration.PlatformCode
	Facility     integration.FacilityContext
	SessionToken string
	// OwnerIDs restricts the import to these roster members; empty means all
	OwnerIDs []string
}

// ImportOrdersInput selects the orders to import and the names to match against
type ImportOrdersInput struct {
	Platform      integration.PlatformCode
	Facility      integration.FacilityContext
	SessionToken  string
	KnownProfiles []integration.RosterMember
}

// CatalogInput identifies the public catalog to read
type CatalogInput struct {
	Platform integration.PlatformCode
	Facility integration.FacilityContext
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// ActivitiesResult is the full activity list plus its upcoming/past split
type ActivitiesResult struct {
	Activities []integration.Activity `json:"activities"`
	Upcoming   []integration.Activity `json:"upcoming"`
	Past       []integration.Activity `json:"past"`
	ImportedAt time.Time              `json:"imported_at"`
}

// OrdersResult splits imported orders by whether a profile was matched.
// Errors lists orders that failed individually; the rest still imported.
type OrdersResult struct {
	Matched    []integration.Order     `json:"matched"`
	Unmatched  []integration.Order     `json:"unmatched"`
	Errors     []integration.ItemError `json:"errors"`
	Discovered int                     `json:"discovered"`
	ImportedAt time.Time               `json:"imported_at"`
}

// Partial reports whether some orders failed to import
func (r *OrdersResult) Partial() bool {
	return r != nil && len(r.Errors) > 0
}
