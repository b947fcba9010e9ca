package facility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// ResourceAPIAdapter implements FacilityAdapter for the vendor exposing a
// JSON:API style resource API.
type ResourceAPIAdapter struct {
	config     *ResourceAPIConfig
	httpClient *http.Client
	logger     *zap.Logger
	archive    integration.PageArchive
	states     *stateTracker
}

// NewResourceAPIAdapter creates a new resource API adapter
func NewResourceAPIAdapter(config *ResourceAPIConfig, opts ...Option) (*ResourceAPIAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	client := o.httpClient
	if client == nil {
		client = newHTTPClient(config.Timeout)
	}
	return &ResourceAPIAdapter{
		config:     config,
		httpClient: client,
		logger:     o.logger.Named("resource_api"),
		archive:    o.archive,
		states:     newStateTracker(),
	}, nil
}

// PlatformCode returns the platform code for this adapter
func (a *ResourceAPIAdapter) PlatformCode() integration.PlatformCode {
	return integration.PlatformCodeResourceAPI
}

// State returns the last connection state this process observed for a
// facility, across all sessions. It is diagnostic and must not gate calls.
func (a *ResourceAPIAdapter) State(facilityID string) integration.AuthState {
	return a.states.get(facilityID)
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

// Authenticate posts the credentials to the facility login endpoint, harvests
// every Set-Cookie into the session token and enumerates the account roster.
func (a *ResourceAPIAdapter) Authenticate(ctx context.Context, identity, secret string, fc integration.FacilityContext) (result *integration.AuthResult, err error) {
	const op = "resource_api.authenticate"
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

	form := url.Values{}
	form.Set("email", identity)
	form.Set("password", secret)

	loginURL := joinPath(base, a.config.LoginPath, fc.FacilityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/vnd.api+json, application/json")

	resp, err := doFetch(a.httpClient, req, op)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, classifyLoginStatus(op, resp.Status)
	}

	cookies := &CookieSet{}
	cookies.AddResponse(resp.Header)
	if cookies.Len() == 0 {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, resp.Status,
			fmt.Errorf("login response set no session cookie"))
	}
	token := cookies.Header()

	// The login body is optional context. A body that does not parse only
	// loses the fallback principal and facility name.
	var loginDoc apiDocument
	if len(resp.Body) > 0 {
		if jsonErr := json.Unmarshal(resp.Body, &loginDoc); jsonErr != nil {
			a.logger.Debug("login body is not a JSON:API document", zap.Error(jsonErr))
		}
	}

	members, rosterErr := a.fetchRoster(ctx, base, fc, token)
	if rosterErr != nil {
		a.logger.Warn("roster enumeration failed, falling back to login principal",
			zap.String("facility_id", fc.FacilityID),
			zap.Error(rosterErr),
		)
	}
	if len(members) == 0 {
		members = principalFromLogin(&loginDoc)
	}
	if len(members) == 0 {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, resp.Status,
			fmt.Errorf("no importable roster member on the account"))
	}

	name := loginDoc.Meta.FacilityName
	if name == "" {
		name = facilityNameFromIncluded(loginDoc.Included)
	}
	if name == "" {
		name = fc.DisplayName
	}

	a.logger.Info("facility authenticated",
		zap.String("facility_id", fc.FacilityID),
		zap.Int("roster_members", len(members)),
	)

	return &integration.AuthResult{
		SessionToken:  token,
		RosterMembers: members,
		FacilityName:  name,
	}, nil
}

// fetchRoster lists the customers attached to the logged-in account
func (a *ResourceAPIAdapter) fetchRoster(ctx context.Context, base *url.URL, fc integration.FacilityContext, token string) ([]integration.RosterMember, error) {
	const op = "resource_api.roster"
	u := joinPath(base, a.config.RosterPath, fc.FacilityID)
	q := u.Query()
	q.Set("filter[account]", "me")
	u.RawQuery = q.Encode()

	doc, err := a.getDocument(ctx, op, u.String(), token)
	if err != nil {
		return nil, err
	}
	resources, err := doc.resources()
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, err)
	}
	return rosterFromResources(resources), nil
}

func rosterFromResources(resources []apiResource) []integration.RosterMember {
	members := make([]integration.RosterMember, 0, len(resources))
	for _, r := range resources {
		if r.Type != "" && r.Type != resourceTypeCustomer {
			continue
		}
		var attrs customerAttributes
		if err := decodeAttributes(r, &attrs); err != nil || r.ID == "" {
			continue
		}
		m := integration.RosterMember{ID: r.ID, DisplayName: attrs.displayName()}
		if date, _, ok := parseVendorTime(attrs.BirthDate); ok {
			if dob, err := time.Parse(integration.DateLayout, date); err == nil {
				m.DateOfBirth = &dob
			}
		}
		members = append(members, m)
	}
	return members
}

// principalFromLogin uses the account principal embedded in the login body
func principalFromLogin(doc *apiDocument) []integration.RosterMember {
	resources, err := doc.resources()
	if err != nil {
		return nil
	}
	return rosterFromResources(resources)
}

func facilityNameFromIncluded(included []apiResource) string {
	for _, r := range included {
		if r.Type != resourceTypeFacility {
			continue
		}
		var attrs namedAttributes
		if decodeAttributes(r, &attrs) == nil && attrs.Name != "" {
			return attrs.Name
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

// ListActivities fetches every page of registered events for the given
// owners and normalizes them into canonical activities.
func (a *ResourceAPIAdapter) ListActivities(ctx context.Context, fc integration.FacilityContext, sessionToken string, ownerIDs []string) (activities []integration.Activity, err error) {
	const op = "resource_api.list_activities"
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

	u := joinPath(base, a.config.EventsPath, fc.FacilityID)
	q := u.Query()
	q.Set("include", eventIncludes)
	q.Set("page[size]", strconv.Itoa(a.config.PageSize))
	if len(ownerIDs) > 0 {
		q.Set("filter[customer]", strings.Join(ownerIDs, ","))
	}
	u.RawQuery = q.Encode()

	var (
		events   []apiResource
		included []apiResource
	)
	next := u.String()
	for page := 0; next != "" && page < a.config.MaxPages; page++ {
		doc, err := a.getDocument(ctx, op, next, sessionToken)
		if err != nil {
			return nil, err
		}
		resources, err := doc.resources()
		if err != nil {
			return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, err)
		}
		events = append(events, resources...)
		included = append(included, doc.Included...)

		next, err = resolveNext(next, doc.Links.Next)
		if err != nil {
			return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, err)
		}
	}
	if next != "" {
		a.logger.Warn("activity pagination truncated",
			zap.String("facility_id", fc.FacilityID),
			zap.Int("max_pages", a.config.MaxPages),
		)
	}

	idx := newIncludedIndex(included)
	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(events))
	activities = make([]integration.Activity, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		act, mapErr := a.mapEvent(ev, idx, fc)
		if mapErr != nil {
			a.logger.Warn("skipping event record",
				zap.String("facility_id", fc.FacilityID),
				zap.String("event_id", ev.ID),
				zap.Error(integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, mapErr)),
			)
			continue
		}
		if len(owners) > 0 && act.OwnerID != "" {
			if _, ok := owners[act.OwnerID]; !ok {
				continue
			}
		}
		seen[ev.ID] = struct{}{}
		activities = append(activities, act)
	}

	integration.SortActivities(activities)
	return activities, nil
}

// mapEvent resolves one event record against the included lookup tables
func (a *ResourceAPIAdapter) mapEvent(ev apiResource, idx includedIndex, fc integration.FacilityContext) (integration.Activity, error) {
	var attrs eventAttributes
	if err := decodeAttributes(ev, &attrs); err != nil {
		return integration.Activity{}, err
	}
	startDate, startTime, ok := parseVendorTime(attrs.Start)
	if !ok {
		return integration.Activity{}, fmt.Errorf("unparseable start %q", attrs.Start)
	}
	endDate, endTime, ok := parseVendorTime(attrs.End)
	if !ok {
		endDate, endTime = startDate, startTime
	}

	act := integration.Activity{
		ID:           ev.ID,
		Name:         strings.TrimSpace(attrs.Name),
		Description:  strings.TrimSpace(attrs.Description),
		StartDate:    startDate,
		EndDate:      endDate,
		StartTime:    startTime,
		EndTime:      endTime,
		LocationName: fc.DisplayName,
		Price:        decimal.Zero,
		Currency:     a.config.DefaultCurrency,
		Registered:   attrs.Registered == nil || *attrs.Registered,
	}

	if id, ok := firstIdentifier(ev, "customer"); ok {
		act.OwnerID = id.ID
		act.OwnerName = idx.name(id)
	}
	if id, ok := firstIdentifier(ev, "facility"); ok {
		if name := idx.name(id); name != "" {
			act.LocationName = name
		}
	}
	if id, ok := firstIdentifier(ev, "eventType"); ok {
		act.Category = idx.name(id)
	}
	if act.Name == "" {
		act.Name = act.Category
	}

	if rel, ok := ev.Relationships["finances"]; ok {
		ids, err := rel.identifiers()
		if err != nil {
			return integration.Activity{}, fmt.Errorf("finances relationship: %w", err)
		}
		for _, id := range ids {
			res, found := idx.lookup(id)
			if !found {
				continue
			}
			var fin financeAttributes
			if err := decodeAttributes(res, &fin); err != nil {
				return integration.Activity{}, fmt.Errorf("finance %s: %w", id.ID, err)
			}
			if fin.Amount != nil {
				act.Price = *fin.Amount
			}
			if fin.Currency != "" {
				act.Currency = strings.ToUpper(fin.Currency)
			}
			break
		}
	}

	act.Normalize()
	return act, nil
}

// firstIdentifier returns the first identifier of a named relationship
func firstIdentifier(res apiResource, name string) (apiIdentifier, bool) {
	rel, ok := res.Relationships[name]
	if !ok {
		return apiIdentifier{}, false
	}
	ids, err := rel.identifiers()
	if err != nil || len(ids) == 0 {
		return apiIdentifier{}, false
	}
	return ids[0], true
}

// resolveNext resolves links.next against the current page URL
func resolveNext(current, next string) (string, error) {
	if next == "" {
		return "", nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	u, err := cur.Parse(next)
	if err != nil {
		return "", err
	}
	if u.String() == current {
		return "", nil
	}
	return u.String(), nil
}

// ---------------------------------------------------------------------------
// Public catalog
// ---------------------------------------------------------------------------

// ListPublicCatalog reads the facility's public programs without authentication
func (a *ResourceAPIAdapter) ListPublicCatalog(ctx context.Context, fc integration.FacilityContext) (sessions []integration.Session, err error) {
	const op = "resource_api.list_catalog"
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
	done := a.states.begin(fc.FacilityID, integration.AuthStateSyncingCatalog, settled)
	defer func() {
		if integration.KindOf(err) == integration.ErrorKindNeedsReauth {
			// The catalog is public; a 401 here says nothing about the session.
			a.states.set(fc.FacilityID, settled)
			return
		}
		done(err)
	}()

	u := joinPath(base, a.config.ProgramsPath, fc.FacilityID)
	doc, err := a.getDocument(ctx, op, u.String(), "")
	if err != nil {
		return nil, err
	}
	resources, err := doc.resources()
	if err != nil {
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, 0, err)
	}

	sessions = make([]integration.Session, 0, len(resources))
	for _, r := range resources {
		var attrs programAttributes
		if err := decodeAttributes(r, &attrs); err != nil {
			a.logger.Warn("skipping program record", zap.String("program_id", r.ID), zap.Error(err))
			continue
		}
		s := integration.Session{
			ID:       r.ID,
			Name:     strings.TrimSpace(attrs.Name),
			Location: strings.TrimSpace(attrs.Location),
			Dates:    formatDateRange(attrs.Start, attrs.End),
			Price:    decimal.Zero,
			Currency: a.config.DefaultCurrency,
			Category: attrs.Category,
			URL:      attrs.URL,
		}
		if attrs.Price != nil && !attrs.Price.IsNegative() {
			s.Price = *attrs.Price
		}
		if attrs.Currency != "" {
			s.Currency = strings.ToUpper(attrs.Currency)
		}
		if s.Location == "" {
			s.Location = fc.DisplayName
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// formatDateRange renders "start - end" from vendor timestamps
func formatDateRange(start, end string) string {
	s, _, ok := parseVendorTime(start)
	if !ok {
		return ""
	}
	e, _, ok := parseVendorTime(end)
	if !ok || e == s {
		return s
	}
	return s + " - " + e
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// getDocument GETs a JSON:API document. 401/403 map to NeedsReauth, other
// non-2xx to Upstream and undecodable bodies to SchemaMismatch.
func (a *ResourceAPIAdapter) getDocument(ctx context.Context, op, rawURL, token string) (*apiDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")
	if token != "" {
		req.Header.Set("Cookie", token)
	}

	resp, err := doFetch(a.httpClient, req, op)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, classifySessionStatus(op, resp.Status)
	}

	var doc apiDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		archivePage(ctx, a.archive, a.logger, integration.PlatformCodeResourceAPI, rawURL, resp.Body)
		return nil, integration.NewError(integration.ErrorKindSchemaMismatch, op, resp.Status, err)
	}
	return &doc, nil
}

// Ensure ResourceAPIAdapter implements FacilityAdapter
var _ integration.FacilityAdapter = (*ResourceAPIAdapter)(nil)
