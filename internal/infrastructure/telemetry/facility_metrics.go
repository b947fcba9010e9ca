package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Facility metric attribute keys
var (
	AttrPlatform  = attribute.Key("platform")
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
)

// ImportOutcome labels the result of one adapter call
type ImportOutcome string

const (
	ImportOutcomeSuccess ImportOutcome = "success"
	ImportOutcomePartial ImportOutcome = "partial"
	ImportOutcomeFailure ImportOutcome = "failure"
)

// ImportDurationBuckets cover vendor round trips, from a single JSON page to
// a paced fifty-order scrape (seconds).
var ImportDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// FacilityMetrics records facility adapter activity.
type FacilityMetrics struct {
	logger *zap.Logger

	importTotal    *Counter
	importDuration *Histogram
	recordsTotal   *Counter
	itemErrors     *Counter
}

// FacilityMetricsConfig holds configuration for facility metrics.
type FacilityMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewFacilityMetrics creates a new FacilityMetrics instance.
func NewFacilityMetrics(cfg FacilityMetricsConfig) (*FacilityMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fm := &FacilityMetrics{logger: logger}

	var err error
	fm.importTotal, err = NewCounter(
		cfg.Meter,
		"rosterlink_facility_import_total",
		"Total number of facility adapter calls by outcome",
		"{calls}",
	)
	if err != nil {
		return nil, err
	}

	fm.importDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "rosterlink_facility_import_duration_seconds",
		Description: "Duration of facility adapter calls",
		Unit:        "s",
		Boundaries:  ImportDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	fm.recordsTotal, err = NewCounter(
		cfg.Meter,
		"rosterlink_facility_records_total",
		"Total number of activities, orders and sessions imported",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	fm.itemErrors, err = NewCounter(
		cfg.Meter,
		"rosterlink_facility_item_errors_total",
		"Total number of per-record failures inside partial imports",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	return fm, nil
}

// RecordImport records one adapter call: its outcome, duration and the
// number of records and item errors it produced.
func (fm *FacilityMetrics) RecordImport(ctx context.Context, platform, operation string, outcome ImportOutcome, d time.Duration, records, itemErrors int) {
	attrs := []attribute.KeyValue{
		AttrPlatform.String(platform),
		AttrOperation.String(operation),
	}
	fm.importTotal.Inc(ctx, append(attrs, AttrOutcome.String(string(outcome)))...)
	fm.importDuration.RecordDuration(ctx, d, attrs...)
	if records > 0 {
		fm.recordsTotal.Add(ctx, int64(records), attrs...)
	}
	if itemErrors > 0 {
		fm.itemErrors.Add(ctx, int64(itemErrors), attrs...)
	}
}
