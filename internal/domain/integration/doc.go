// Package integration contains the Facility Integration bounded context.
// This context links third-party youth-sports facility accounts and normalizes
// their registrations, rosters and billing history into canonical records.
//
// Key concepts:
//   - FacilityAdapter: Port interface every vendor adapter implements (authenticate, activities, public catalog)
//   - OrderSource: Optional port for vendors that expose purchase history instead of registrations
//   - Activity / Order / Session: Canonical records produced by adapters, consumed read-only
//   - FacilityCredential: Session-scoped credential; the session token is ephemeral and device-local
//   - IntegrationError: Typed failure carrying an ErrorKind so callers can tell reauth from outage
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in internal/infrastructure/facility
package integration
