// Package facility is the application boundary over the facility adapters.
// It resolves the adapter for a platform, validates the call, records import
// metrics and shapes adapter output into the views clients consume.
package facility

import (
	"context"
	"strings"
	"time"

	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Operation names used for spans and metrics
const (
	opAuthenticate = "authenticate"
	opActivities   = "import_activities"
	opOrders       = "import_orders"
	opCatalog      = "read_catalog"
)

// ImportObserver receives one record per adapter call
type ImportObserver interface {
	RecordImport(ctx context.Context, platform, operation string, outcome telemetry.ImportOutcome, d time.Duration, records, itemErrors int)
}

type nopObserver struct{}

func (nopObserver) RecordImport(context.Context, string, string, telemetry.ImportOutcome, time.Duration, int, int) {
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithObserver sets the import metrics observer
func WithObserver(observer ImportObserver) ServiceOption {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithClock overrides the clock used for the upcoming/past split
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service exposes authenticate, import and catalog operations per platform
type Service struct {
	registry integration.FacilityAdapterRegistry
	observer ImportObserver
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new facility Service
func NewService(registry integration.FacilityAdapterRegistry, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		registry: registry,
		observer: nopObserver{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Platforms returns the enabled platforms
func (s *Service) Platforms() []integration.PlatformCode {
	return s.registry.Platforms()
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Authenticate logs in to a facility and returns the session token, roster
// members and facility name. Fails with INVALID_CREDENTIALS or UNREACHABLE.
func (s *Service) Authenticate(ctx context.Context, input AuthenticateInput) (result *integration.AuthResult, err error) {
	if strings.TrimSpace(input.Email) == "" || input.Secret == "" {
		return nil, integration.ErrMissingIdentity
	}
	if err := input.Facility.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(input.Platform)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, opAuthenticate, input.Platform, input.Facility)
	defer span.End()
	start := time.Now()
	defer func() {
		records := 0
		if result != nil {
			records = len(result.RosterMembers)
		}
		s.finish(ctx, span, input.Platform, opAuthenticate, start, records, 0, err)
	}()

	result, err = adapter.Authenticate(ctx, input.Email, input.Secret, input.Facility)
	if err != nil {
		return nil, err
	}
	if result.FacilityName == "" {
		result.FacilityName = input.Facility.DisplayName
	}
	if result.RosterMembers == nil {
		result.RosterMembers = []integration.RosterMember{}
	}
	return result, nil
}

// ImportActivities recomputes the full activity list for the given owners
// and splits it around today. Fails with NEEDS_REAUTH or UPSTREAM_ERROR; the
// caller keeps its previously stored activities in that case.
func (s *Service) ImportActivities(ctx context.Context, input ImportActivitiesInput) (result *ActivitiesResult, err error) {
	if input.SessionToken == "" {
		return nil, integration.ErrMissingSessionToken
	}
	if err := input.Facility.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(input.Platform)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, opActivities, input.Platform, input.Facility)
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrOwnerCount, len(input.OwnerIDs))
	start := time.Now()
	defer func() {
		records := 0
		if result != nil {
			records = len(result.Activities)
		}
		s.finish(ctx, span, input.Platform, opActivities, start, records, 0, err)
	}()

	activities, err := adapter.ListActivities(ctx, input.Facility, input.SessionToken, input.OwnerIDs)
	if err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []integration.Activity{}
	}

	now := s.now()
	upcoming, past := integration.PartitionActivities(activities, now)
	return &ActivitiesResult{
		Activities: activities,
		Upcoming:   upcoming,
		Past:       past,
		ImportedAt: now.UTC(),
	}, nil
}

// ImportOrders imports purchase history and matches each order to one of
// the known profiles. Per-order failures are returned in Errors alongside
// every order that did import.
func (s *Service) ImportOrders(ctx context.Context, input ImportOrdersInput) (result *OrdersResult, err error) {
	if input.SessionToken == "" {
		return nil, integration.ErrMissingSessionToken
	}
	if err := input.Facility.Validate(); err != nil {
		return nil, err
	}
	source, err := s.registry.OrderSource(input.Platform)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, opOrders, input.Platform, input.Facility)
	defer span.End()
	start := time.Now()
	defer func() {
		records, itemErrors := 0, 0
		if result != nil {
			records = len(result.Matched) + len(result.Unmatched)
			itemErrors = len(result.Errors)
		}
		s.finish(ctx, span, input.Platform, opOrders, start, records, itemErrors, err)
	}()

	var imported *integration.OrderImport
	telemetry.WithImportLabels(ctx, string(input.Platform), opOrders, func(ctx context.Context) {
		imported, err = source.ListOrders(ctx, input.Facility, input.SessionToken, input.KnownProfiles)
	})
	if err != nil {
		return nil, err
	}

	matched, unmatched := integration.SplitMatched(imported.Orders)
	itemErrors := imported.Errors
	if itemErrors == nil {
		itemErrors = []integration.ItemError{}
	}
	for _, ie := range itemErrors {
		telemetry.AddEvent(span, "order_skipped", "ref", ie.Ref, "kind", ie.Kind.String())
	}
	return &OrdersResult{
		Matched:    matched,
		Unmatched:  unmatched,
		Errors:     itemErrors,
		Discovered: imported.Discovered,
		ImportedAt: s.now().UTC(),
	}, nil
}

// ReadPublicCatalog reads the facility's public schedule without credentials
func (s *Service) ReadPublicCatalog(ctx context.Context, input CatalogInput) (sessions []integration.Session, err error) {
	if err := input.Facility.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(input.Platform)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, opCatalog, input.Platform, input.Facility)
	defer span.End()
	start := time.Now()
	defer func() {
		s.finish(ctx, span, input.Platform, opCatalog, start, len(sessions), 0, err)
	}()

	sessions, err = adapter.ListPublicCatalog(ctx, input.Facility)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []integration.Session{}
	}
	return sessions, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Service) startSpan(ctx context.Context, op string, platform integration.PlatformCode, fc integration.FacilityContext) (context.Context, trace.Span) {
	return telemetry.StartServiceSpan(ctx, "facility", op,
		telemetry.WithAttribute(telemetry.SpanAttrPlatform, platform.String()),
		telemetry.WithAttribute(telemetry.SpanAttrFacilityID, fc.FacilityID),
	)
}

func (s *Service) finish(ctx context.Context, span trace.Span, platform integration.PlatformCode, op string, start time.Time, records, itemErrors int, err error) {
	elapsed := time.Since(start)
	outcome := telemetry.ImportOutcomeSuccess
	switch {
	case err != nil:
		outcome = telemetry.ImportOutcomeFailure
	case itemErrors > 0:
		outcome = telemetry.ImportOutcomePartial
	}
	s.observer.RecordImport(ctx, platform.String(), op, outcome, elapsed, records, itemErrors)
	telemetry.SetAttribute(span, telemetry.SpanAttrRecordCount, records)

	fields := []zap.Field{
		zap.String("platform", platform.String()),
		zap.String("operation", op),
		zap.Duration("duration", elapsed),
		zap.Int("records", records),
	}
	if err == nil {
		if itemErrors > 0 {
			s.logger.Warn("Facility import partially succeeded", append(fields, zap.Int("item_errors", itemErrors))...)
			return
		}
		s.logger.Debug("Facility call succeeded", fields...)
		return
	}

	telemetry.RecordError(span, err)
	if kind := integration.KindOf(err); kind != "" {
		telemetry.SetAttribute(span, telemetry.SpanAttrErrorKind, kind.String())
		fields = append(fields, zap.String("kind", kind.String()))
	}
	s.logger.Warn("Facility call failed", append(fields, zap.Error(err))...)
}
