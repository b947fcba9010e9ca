// Package settings contains the Settings Synchronization bounded context.
// It defines the SyncDocument exchanged between a device and the remote store,
// the per-field merge policy, and the ports both sides of the sync depend on.
//
// Key concepts:
//   - SyncDocument: Full snapshot of synchronizable local state, keyed by whitelisted field names
//   - FieldClass: How a field merges (set union, seed-once collection, scalar, credential, ephemeral)
//   - Policy: The whitelist of field names and their classes
//   - Repository: Server-side port, one document per user identity
//   - RemoteStore / StateStore: Client-side ports used by the sync engine
package settings
