package integration

import "context"

// FacilityAdapter is the port every vendor adapter implements.
// Adapters perform network I/O only and never persist anything locally.
// Every returned error is an *IntegrationError.
type FacilityAdapter interface {
	// PlatformCode returns the vendor platform this adapter serves
	PlatformCode() PlatformCode

	// Authenticate logs in and returns the session token plus any roster members
	// the vendor exposes for the account.
	Authenticate(ctx context.Context, identity, secret string, fc FacilityContext) (*AuthResult, error)

	// ListActivities returns the registered activities for the given owners.
	// An empty ownerIDs slice means every owner on the account.
	ListActivities(ctx context.Context, fc FacilityContext, sessionToken string, ownerIDs []string) ([]Activity, error)

	// ListPublicCatalog reads the facility's public schedule without authentication
	ListPublicCatalog(ctx context.Context, fc FacilityContext) ([]Session, error)
}

// OrderSource is implemented by adapters whose vendor exposes purchase
// history rather than registrations.
type OrderSource interface {
	// ListOrders imports orders and matches them against roster.
	// Per-order failures are collected in OrderImport.Errors and do not fail the call.
	ListOrders(ctx context.Context, fc FacilityContext, sessionToken string, roster []RosterMember) (*OrderImport, error)
}

// FacilityAdapterRegistry resolves adapters by platform
type FacilityAdapterRegistry interface {
	// Register adds an adapter, replacing any adapter for the same platform
	Register(adapter FacilityAdapter)

	// Get returns the adapter for a platform
	Get(code PlatformCode) (FacilityAdapter, error)

	// OrderSource returns the order source for a platform, if the adapter is one
	OrderSource(code PlatformCode) (OrderSource, error)

	// Platforms returns all registered platform codes
	Platforms() []PlatformCode
}

// PageArchive stores raw upstream payloads that failed to parse so vendor
// template changes can be diagnosed later.
type PageArchive interface {
	Archive(ctx context.Context, platform PlatformCode, ref string, body []byte) error
}
