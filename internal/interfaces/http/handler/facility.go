package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	appfacility "github.com/rosterlink/backend/internal/application/facility"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/interfaces/http/dto"
)

// FacilityService is the adapter-boundary service the handler drives
type FacilityService interface {
	Platforms() []integration.PlatformCode
	Authenticate(ctx context.Context, input appfacility.AuthenticateInput) (*integration.AuthResult, error)
	ImportActivities(ctx context.Context, input appfacility.ImportActivitiesInput) (*appfacility.ActivitiesResult, error)
	ImportOrders(ctx context.Context, input appfacility.ImportOrdersInput) (*appfacility.OrdersResult, error)
	ReadPublicCatalog(ctx context.Context, input appfacility.CatalogInput) ([]integration.Session, error)
}

var _ FacilityService = (*appfacility.Service)(nil)

// FacilityHandler exposes the facility adapters to thin clients
type FacilityHandler struct {
	BaseHandler
	service FacilityService
}

// NewFacilityHandler creates a new FacilityHandler
func NewFacilityHandler(service FacilityService) *FacilityHandler {
	return &FacilityHandler{service: service}
}

// platform binds and parses the :platform path segment
func (h *FacilityHandler) platform(c *gin.Context) (integration.PlatformCode, bool) {
	var uri dto.PlatformURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.HandleBindError(c, err)
		return "", false
	}
	code, err := integration.ParsePlatformCode(uri.Platform)
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return code, true
}

// ListPlatforms handles GET /api/v1/facilities
func (h *FacilityHandler) ListPlatforms(c *gin.Context) {
	h.Success(c, gin.H{"platforms": h.service.Platforms()})
}

// Authenticate handles POST /api/v1/facilities/:platform/authenticate
func (h *FacilityHandler) Authenticate(c *gin.Context) {
	platform, ok := h.platform(c)
	if !ok {
		return
	}
	var req dto.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	result, err := h.service.Authenticate(c.Request.Context(), appfacility.AuthenticateInput{
		Platform: platform,
		Facility: req.Facility.Context(),
		Email:    req.Email,
		Secret:   req.Secret,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ImportActivities handles POST /api/v1/facilities/:platform/activities
func (h *FacilityHandler) ImportActivities(c *gin.Context) {
	platform, ok := h.platform(c)
	if !ok {
		return
	}
	var req dto.ImportActivitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	result, err := h.service.ImportActivities(c.Request.Context(), appfacility.ImportActivitiesInput{
		Platform:     platform,
		Facility:     req.Facility.Context(),
		SessionToken: req.SessionToken,
		OwnerIDs:     req.OwnerIDs,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ImportOrders handles POST /api/v1/facilities/:platform/orders. Orders that
// failed individually are listed in errors; the request still succeeds.
func (h *FacilityHandler) ImportOrders(c *gin.Context) {
	platform, ok := h.platform(c)
	if !ok {
		return
	}
	var req dto.ImportOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	result, err := h.service.ImportOrders(c.Request.Context(), appfacility.ImportOrdersInput{
		Platform:      platform,
		Facility:      req.Facility.Context(),
		SessionToken:  req.SessionToken,
		KnownProfiles: req.Members(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Catalog handles GET /api/v1/facilities/:platform/catalog?facility_id=...
func (h *FacilityHandler) Catalog(c *gin.Context) {
	platform, ok := h.platform(c)
	if !ok {
		return
	}
	var req dto.FacilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	sessions, err := h.service.ReadPublicCatalog(c.Request.Context(), appfacility.CatalogInput{
		Platform: platform,
		Facility: req.Context(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if sessions == nil {
		sessions = []integration.Session{}
	}
	h.Success(c, dto.CatalogResponse{Sessions: sessions})
}
