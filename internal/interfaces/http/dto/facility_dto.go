package dto

import (
	"github.com/rosterlink/backend/internal/domain/integration"
)

// FacilityRequest identifies the facility an operation targets
type FacilityRequest struct {
	FacilityID  string `json:"facility_id" form:"facility_id" binding:"required,max=200"`
	DisplayName string `json:"display_name" form:"display_name" binding:"omitempty,max=200"`
	BaseURL     string `json:"base_url" form:"base_url" binding:"omitempty,url"`
}

// Context converts the request into the adapter-facing facility context
func (r FacilityRequest) Context() integration.FacilityContext {
	return integration.FacilityContext{
		FacilityID:  r.FacilityID,
		DisplayName: r.DisplayName,
		BaseURL:     r.BaseURL,
	}
}

// PlatformURI binds the :platform path segment
type PlatformURI struct {
	Platform string `uri:"platform" binding:"required,platform"`
}

// AuthenticateRequest is the body of POST /facilities/:platform/authenticate
type AuthenticateRequest struct {
	Facility FacilityRequest `json:"facility" binding:"required"`
	Email    string          `json:"email" binding:"required,max=254"`
	Secret   string          `json:"secret" binding:"required"`
}

// ImportActivitiesRequest is the body of POST /facilities/:platform/activities
type ImportActivitiesRequest struct {
	Facility     FacilityRequest `json:"facility" binding:"required"`
	SessionToken string          `json:"session_token" binding:"required"`
	OwnerIDs     []string        `json:"owner_ids" binding:"omitempty,dive,required"`
}

// ProfileRequest is one known child profile used for order matching
type ProfileRequest struct {
	ID          string `json:"id" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

// ImportOrdersRequest is the body of POST /facilities/:platform/orders
type ImportOrdersRequest struct {
	Facility      FacilityRequest  `json:"facility" binding:"required"`
	SessionToken  string           `json:"session_token" binding:"required"`
	KnownProfiles []ProfileRequest `json:"known_profiles" binding:"omitempty,dive"`
}

// Members converts the known profiles into roster members
func (r ImportOrdersRequest) Members() []integration.RosterMember {
	members := make([]integration.RosterMember, 0, len(r.KnownProfiles))
	for _, p := range r.KnownProfiles {
		members = append(members, integration.RosterMember{ID: p.ID, DisplayName: p.DisplayName})
	}
	return members
}

// CatalogResponse wraps the public session list
type CatalogResponse struct {
	Sessions []integration.Session `json:"sessions"`
}
