package dto

import "github.com/rosterlink/backend/internal/domain/settings"

// SyncDocumentBody is both the PUT /sync request and the GET /sync payload.
// Settings is null in a GET response when the user never pushed.
type SyncDocumentBody struct {
	Settings settings.SyncDocument `json:"settings"`
}
