package facility

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// StorefrontAdapter implements FacilityAdapter and OrderSource for the legacy
// vendor that only renders HTML. It logs in through the storefront's form,
// scrapes the order history and reads the public category pages.
type StorefrontAdapter struct {
	config     *StorefrontConfig
	httpClient *http.Client
	logger     *zap.Logger
	archive    integration.PageArchive
	renderer   PageRenderer
	limiter    *rate.Limiter
	states     *stateTracker
}

// NewStorefrontAdapter creates a new storefront adapter
func NewStorefrontAdapter(config *StorefrontConfig, opts ...Option) (*StorefrontAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	client := o.httpClient
	if client == nil {
		client = newHTTPClient(config.Timeout)
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	return &StorefrontAdapter{
		config:     config,
		httpClient: client,
		logger:     o.logger.Named("storefront"),
		archive:    o.archive,
		renderer:   o.renderer,
		limiter:    rate.NewLimiter(limit, 1),
		states:     newStateTracker(),
	}, nil
}

// PlatformCode returns the platform code for this adapter
func (a *StorefrontAdapter) PlatformCode() integration.PlatformCode {
	return integration.PlatformCodeStorefront
}

// State returns the last connection state this process observed for a
// facility, across all sessions. It is diagnostic and must not gate calls.
func (a *StorefrontAdapter) State(facilityID string) integration.AuthState {
	return a.states.get(facilityID)
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

// Authenticate runs the login page → form post → account page sequence.
// Cookies from every hop are kept; the session token is their header form.
func (a *StorefrontAdapter) Authenticate(ctx context.Context, identity, secret string, fc integration.FacilityContext) (result *integration.AuthResult, err error) {
	const op = "storefront.authenticate"
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	if identity == "" || secret == "" {
		return nil, integration.ErrMissingIdentity
	}
	base, err := resolveBaseURL(fc, a.config.BaseURL)
	if err != nil {
		return nil, err
	}

	done := a.states.begin(fc.FacilityID, integration.AuthStateAuthenticating, integration.AuthStateAuthenticated)
	defer func() { done(err) }()

	cookies := &CookieSet{}
	loginURL := joinPath(base, a.config.LoginPath, fc.FacilityID).String()

	// 1. Login page: anti-forgery token and pre-session cookies
	page, err := a.send(ctx, op, http.MethodGet, loginURL, nil, cookies)
	if err != nil {
		return nil, err
	}
	if !page.IsSuccess() {
		return nil, classifyLoginStatus(op, page.Status)
	}
	loginDoc, err := parseHTML(page.Body)
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	token := loginToken(loginDoc, a.config.CSRFFieldName)
	if token == "" {
		a.logger.Debug("login page carries no anti-forgery token", zap.String("facility_id", fc.FacilityID))
	}

	// 2. Form post, redirects not followed
	form := url.Values{}
	form.Set(a.config.UsernameField, identity)
	form.Set(a.config.PasswordField, secret)
	if token != "" {
		form.Set(a.config.CSRFFieldName, token)
	}
	form.Set("login", "Log in")

	post, err := a.send(ctx, op, http.MethodPost, loginURL, form, cookies)
	if err != nil {
		return nil, err
	}
	switch {
	case post.IsRedirect():
		// One hop only. The hop may set the final session cookie.
		if _, err := a.send(ctx, op, http.MethodGet, post.Location, nil, cookies); err != nil {
			return nil, err
		}
	case !post.IsSuccess():
		return nil, classifyLoginStatus(op, post.Status)
	}

	// 3. Account page must prove the session
	accountURL := joinPath(base, a.config.AccountPath, fc.FacilityID).String()
	account, err := a.send(ctx, op, http.MethodGet, accountURL, nil, cookies)
	if err != nil {
		return nil, err
	}
	if !account.IsSuccess() {
		return nil, classifyLoginStatus(op, account.Status)
	}
	accountDoc, err := parseHTML(account.Body)
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, account.Status, err)
	}
	if !isAuthenticatedPage(accountDoc, a.config.Selectors) {
		return nil, integration.NewError(integration.ErrorKindInvalidCredentials, op, account.Status,
			fmt.Errorf("account page did not confirm the session"))
	}

	name := normalizeSpace(accountDoc.Find(a.config.Selectors.FacilityName).First().Text())
	if name == "" {
		name = fc.DisplayName
	}

	// 4. Optional roster
	var members []integration.RosterMember
	if a.config.MembersPath != "" {
		members, err = a.fetchRoster(ctx, base, fc, cookies)
		if err != nil {
			a.logger.Warn("roster page unavailable", zap.String("facility_id", fc.FacilityID), zap.Error(err))
			err = nil
		}
	}
	if members == nil {
		members = []integration.RosterMember{}
	}

	a.logger.Info("facility authenticated",
		zap.String("facility_id", fc.FacilityID),
		zap.Int("cookies", cookies.Len()),
		zap.Int("roster_members", len(members)),
	)

	return &integration.AuthResult{
		SessionToken:  cookies.Header(),
		RosterMembers: members,
		FacilityName:  name,
	}, nil
}

func (a *StorefrontAdapter) fetchRoster(ctx context.Context, base *url.URL, fc integration.FacilityContext, cookies *CookieSet) ([]integration.RosterMember, error) {
	const op = "storefront.roster"
	u := joinPath(base, a.config.MembersPath, fc.FacilityID).String()
	page, err := a.send(ctx, op, http.MethodGet, u, nil, cookies)
	if err != nil {
		return nil, err
	}
	if page.IsRedirect() {
		return nil, integration.NewError(integration.ErrorKindNeedsReauth, op, page.Status,
			fmt.Errorf("redirected to %s", page.Location))
	}
	if !page.IsSuccess() {
		return nil, classifySessionStatus(op, page.Status)
	}
	doc, err := parseHTML(page.Body)
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	return parseRosterNames(doc, a.config.Selectors.RosterMember), nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// ListOrders scrapes the order history. Detail pages are fetched one at a
// time, paced by the limiter; a failed order is recorded and skipped.
func (a *StorefrontAdapter) ListOrders(ctx context.Context, fc integration.FacilityContext, sessionToken string, roster []integration.RosterMember) (result *integration.OrderImport, err error) {
	const op = "storefront.list_orders"
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	if sessionToken == "" {
		return nil, integration.ErrMissingSessionToken
	}
	base, err := resolveBaseURL(fc, a.config.BaseURL)
	if err != nil {
		return nil, err
	}

	done := a.states.begin(fc.FacilityID, integration.AuthStateSyncingActivities, integration.AuthStateAuthenticated)
	defer func() { done(err) }()

	cookies := ParseCookieHeader(sessionToken)
	listURL := joinPath(base, a.config.OrdersPath, fc.FacilityID)

	doc, err := a.getSessionPage(ctx, op, listURL.String(), cookies)
	if err != nil {
		return nil, err
	}

	links := extractOrderLinks(doc, listURL, a.config.Selectors)
	result = &integration.OrderImport{
		Orders:     []integration.Order{},
		Errors:     []integration.ItemError{},
		Discovered: len(links),
	}
	if len(links) > a.config.MaxOrderDetails {
		a.logger.Info("order detail fetch capped",
			zap.String("facility_id", fc.FacilityID),
			zap.Int("discovered", len(links)),
			zap.Int("limit", a.config.MaxOrderDetails),
		)
		links = links[:a.config.MaxOrderDetails]
	}

	for _, link := range links {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		order, err := a.fetchOrder(ctx, link, cookies)
		if err != nil {
			if integration.KindOf(err) == integration.ErrorKindNeedsReauth {
				return nil, err
			}
			a.logger.Warn("order import failed",
				zap.String("facility_id", fc.FacilityID),
				zap.String("order_url", link),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, integration.NewItemError(link, err))
			continue
		}
		result.Orders = append(result.Orders, order)
	}

	result.Orders = integration.MatchOrdersToProfiles(result.Orders, roster)

	a.logger.Info("orders imported",
		zap.String("facility_id", fc.FacilityID),
		zap.Int("discovered", result.Discovered),
		zap.Int("imported", len(result.Orders)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// fetchOrder fetches and parses one order detail page
func (a *StorefrontAdapter) fetchOrder(ctx context.Context, link string, cookies *CookieSet) (integration.Order, error) {
	const op = "storefront.order_detail"
	page, err := a.send(ctx, op, http.MethodGet, link, nil, cookies)
	if err != nil {
		return integration.Order{}, err
	}
	if page.IsRedirect() {
		return integration.Order{}, integration.NewError(integration.ErrorKindNeedsReauth, op, page.Status, nil)
	}
	if !page.IsSuccess() {
		return integration.Order{}, classifySessionStatus(op, page.Status)
	}
	doc, err := parseHTML(page.Body)
	if err != nil {
		return integration.Order{}, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	order, err := parseOrderDetail(doc, link, a.config.Selectors, a.config.DefaultCurrency)
	if err != nil {
		archivePage(ctx, a.archive, a.logger, integration.PlatformCodeStorefront, link, page.Body)
		return integration.Order{}, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	return order, nil
}

// getSessionPage fetches a page that needs the session. A 401/403, a
// redirect or a page showing the login form all mean the session is gone.
func (a *StorefrontAdapter) getSessionPage(ctx context.Context, op, rawURL string, cookies *CookieSet) (*goquery.Document, error) {
	page, err := a.send(ctx, op, http.MethodGet, rawURL, nil, cookies)
	if err != nil {
		return nil, err
	}
	if page.IsRedirect() {
		return nil, integration.NewError(integration.ErrorKindNeedsReauth, op, page.Status,
			fmt.Errorf("redirected to %s", page.Location))
	}
	if !page.IsSuccess() {
		return nil, classifySessionStatus(op, page.Status)
	}
	doc, err := parseHTML(page.Body)
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, page.Status, err)
	}
	if doc.Find(a.config.Selectors.LoginForm).Length() > 0 {
		return nil, integration.NewError(integration.ErrorKindNeedsReauth, op, page.Status,
			fmt.Errorf("login form shown"))
	}
	return doc, nil
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

// ListActivities derives activities from the order history. Orders are
// matched against the account's members page to find their owner. With a
// non-empty ownerIDs only orders matched to one of those members are kept;
// without a members page nothing can match, so a filter returns nothing.
func (a *StorefrontAdapter) ListActivities(ctx context.Context, fc integration.FacilityContext, sessionToken string, ownerIDs []string) ([]integration.Activity, error) {
	roster, err := a.activityRoster(ctx, fc, sessionToken, len(ownerIDs) > 0)
	if err != nil {
		return nil, err
	}
	imported, err := a.ListOrders(ctx, fc, sessionToken, roster)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	activities := make([]integration.Activity, 0, len(imported.Orders))
	for _, o := range imported.Orders {
		if len(owners) > 0 {
			if o.MatchedProfileID == nil {
				continue
			}
			if _, ok := owners[*o.MatchedProfileID]; !ok {
				continue
			}
		}
		act, ok := orderActivity(o, fc)
		if !ok {
			a.logger.Debug("order has no usable dates", zap.String("order_id", o.OrderID))
			continue
		}
		activities = append(activities, act)
	}
	integration.SortActivities(activities)
	return activities, nil
}

// activityRoster reads the members page used to attribute orders. A failure
// is fatal only when the caller filters by owner.
func (a *StorefrontAdapter) activityRoster(ctx context.Context, fc integration.FacilityContext, sessionToken string, required bool) ([]integration.RosterMember, error) {
	if a.config.MembersPath == "" {
		return nil, nil
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	if sessionToken == "" {
		return nil, integration.ErrMissingSessionToken
	}
	base, err := resolveBaseURL(fc, a.config.BaseURL)
	if err != nil {
		return nil, err
	}
	roster, err := a.fetchRoster(ctx, base, fc, ParseCookieHeader(sessionToken))
	if err != nil {
		if required || integration.KindOf(err) == integration.ErrorKindNeedsReauth {
			return nil, err
		}
		a.logger.Warn("roster page unavailable, orders stay unattributed",
			zap.String("facility_id", fc.FacilityID), zap.Error(err))
		return nil, nil
	}
	return roster, nil
}

// orderActivity converts a purchased session into an activity
func orderActivity(o integration.Order, fc integration.FacilityContext) (integration.Activity, bool) {
	start, end, ok := ParseDateRange(o.DateRangeText)
	if !ok {
		if o.OrderDate == nil {
			return integration.Activity{}, false
		}
		start = o.OrderDate.Format(integration.DateLayout)
		end = start
	}
	location := o.Location
	if location == "" {
		location = fc.DisplayName
	}
	act := integration.Activity{
		ID:           o.OrderID,
		Name:         o.ItemName,
		StartDate:    start,
		EndDate:      end,
		LocationName: location,
		Price:        o.Price,
		Currency:     o.Currency,
		Registered:   o.Status != "cancelled" && o.Status != "refunded",
		OwnerName:    o.BillingName,
	}
	if o.MatchedProfileID != nil {
		act.OwnerID = *o.MatchedProfileID
	}
	act.Normalize()
	return act, true
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// send issues a request with the accumulated cookies and records any cookies
// the response sets. A non-nil form is posted url-encoded.
func (a *StorefrontAdapter) send(ctx context.Context, op, method, rawURL string, form url.Values, cookies *CookieSet) (*fetchResult, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", rawURL)
	}
	if cookies != nil {
		cookies.Apply(req)
	}

	page, err := doFetch(a.httpClient, req, op)
	if err != nil {
		return nil, err
	}
	if cookies != nil {
		cookies.AddResponse(page.Header)
	}
	return page, nil
}

func parseHTML(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Ensure StorefrontAdapter implements FacilityAdapter and OrderSource
var (
	_ integration.FacilityAdapter = (*StorefrontAdapter)(nil)
	_ integration.OrderSource     = (*StorefrontAdapter)(nil)
)
