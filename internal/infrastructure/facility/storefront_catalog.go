package facility

import (
	"context"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// ListPublicCatalog reads the facility's public category page. Items whose
// listing lacks a location or dates get one detail fetch each, up to
// CatalogDetailLimit; the rest pass through unexpanded.
func (a *StorefrontAdapter) ListPublicCatalog(ctx context.Context, fc integration.FacilityContext) (sessions []integration.Session, err error) {
	const op = "storefront.list_catalog"
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	base, err := resolveBaseURL(fc, a.config.BaseURL)
	if err != nil {
		return nil, err
	}

	settled := a.states.get(fc.FacilityID)
	if settled != integration.AuthStateAuthenticated {
		settled = integration.AuthStateUnauthenticated
	}
	a.states.set(fc.FacilityID, integration.AuthStateSyncingCatalog)
	defer a.states.set(fc.FacilityID, settled)

	pageURL := joinPath(base, a.config.CatalogPath, fc.FacilityID)
	doc, err := a.fetchPublic(ctx, op, pageURL.String())
	if err != nil {
		return nil, err
	}

	sessions = parseCatalogListing(doc, pageURL, a.config.Selectors, fc.FacilityID, a.config.DefaultCurrency)

	expanded := 0
	for i := range sessions {
		s := &sessions[i]
		if !s.NeedsDetail() || s.URL == "" {
			continue
		}
		if expanded >= a.config.CatalogDetailLimit {
			continue
		}
		expanded++

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		detail, err := a.fetchPublic(ctx, "storefront.catalog_detail", s.URL)
		if err != nil {
			a.logger.Warn("catalog detail fetch failed", zap.String("url", s.URL), zap.Error(err))
			continue
		}
		fillSessionFacts(s, blockLines(detail.Find(a.config.Selectors.CatalogDetailInfo)))
	}

	for i := range sessions {
		if sessions[i].Location == "" {
			sessions[i].Location = fc.DisplayName
		}
	}

	a.logger.Debug("catalog read",
		zap.String("facility_id", fc.FacilityID),
		zap.Int("sessions", len(sessions)),
		zap.Int("expanded", expanded),
	)
	return sessions, nil
}

// fetchPublic reads an unauthenticated page, through the renderer when one
// is configured.
func (a *StorefrontAdapter) fetchPublic(ctx context.Context, op, rawURL string) (*goquery.Document, error) {
	if a.renderer != nil {
		html, err := a.renderer.Render(ctx, rawURL)
		if err != nil {
			return nil, integration.NewError(integration.ErrorKindUnreachable, op, 0, err)
		}
		doc, err := parseHTML([]byte(html))
		if err != nil {
			return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, err)
		}
		return doc, nil
	}

	page, err := a.send(ctx, op, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if page.IsRedirect() {
		// Public pages may canonicalize their URL once.
		page, err = a.send(ctx, op, http.MethodGet, page.Location, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	if !page.IsSuccess() {
		return nil, integration.NewError(integration.ErrorKindUpstream, op, page.Status, nil)
	}
	doc, err := parseHTML(page.Body)
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	return doc, nil
}
