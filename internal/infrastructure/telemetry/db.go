package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig configures InstrumentDB
type DBConfig struct {
	// Tracing registers otelgorm spans and slow query marking
	Tracing bool
	// SlowQuery marks spans whose statement ran longer; default 200ms
	SlowQuery time.Duration
	// WithQueryVariables keeps bind values in db.statement. Leave off in production.
	WithQueryVariables bool
	// DBName is reported as db.name; default "postgresql"
	DBName string
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

type dbStartKey struct{}

// InstrumentDB registers tracing callbacks on db and, when meter is not
// nil, observable gauges over the connection pool.
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = 200 * time.Millisecond
	}
	if cfg.DBName == "" {
		cfg.DBName = "postgresql"
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
		if !cfg.WithQueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if cfg.TracerProvider != nil {
			opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
		}
		// Registered ahead of otelgorm so the after hooks run while its span is open
		if err := registerSlowQueryCallbacks(db, cfg.SlowQuery); err != nil {
			return err
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
		logger.Info("Database tracing enabled", zap.Duration("slow_query", cfg.SlowQuery))
	}

	if meter != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := registerPoolGauges(meter, sqlDB); err != nil {
			return err
		}
	}
	return nil
}

func registerSlowQueryCallbacks(db *gorm.DB, threshold time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, dbStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { markSlowQuery(tx, threshold) }

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("rosterlink:start_create", before),
		cb.Create().After("gorm:create").Register("rosterlink:slow_create", after),
		cb.Query().Before("gorm:query").Register("rosterlink:start_query", before),
		cb.Query().After("gorm:query").Register("rosterlink:slow_query", after),
		cb.Update().Before("gorm:update").Register("rosterlink:start_update", before),
		cb.Update().After("gorm:update").Register("rosterlink:slow_update", after),
		cb.Delete().Before("gorm:delete").Register("rosterlink:start_delete", before),
		cb.Delete().After("gorm:delete").Register("rosterlink:slow_delete", after),
		cb.Row().Before("gorm:row").Register("rosterlink:start_row", before),
		cb.Row().After("gorm:row").Register("rosterlink:slow_row", after),
		cb.Raw().Before("gorm:raw").Register("rosterlink:start_raw", before),
		cb.Raw().After("gorm:raw").Register("rosterlink:slow_raw", after),
	)
}

// markSlowQuery annotates the statement span with row count, table,
// errors other than not-found, and a slow_query event past threshold.
func markSlowQuery(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}

	start, ok := ctx.Value(dbStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", threshold.Milliseconds()),
		))
	}
}

// registerPoolGauges reports sql.DBStats through observable instruments
func registerPoolGauges(meter metric.Meter, sqlDB *sql.DB) error {
	open, err := meter.Int64ObservableGauge("rosterlink_db_pool_connections",
		metric.WithDescription("Database pool connections by state"),
		metric.WithUnit("{connections}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("rosterlink_db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{waits}"))
	if err != nil {
		return err
	}
	waitTime, err := meter.Float64ObservableCounter("rosterlink_db_pool_wait_seconds_total",
		metric.WithDescription("Total time blocked waiting for a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}

	state := attribute.Key("db.pool.state")
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(open, int64(stats.InUse), metric.WithAttributes(state.String("in_use")))
		o.ObserveInt64(open, int64(stats.Idle), metric.WithAttributes(state.String("idle")))
		o.ObserveInt64(open, int64(stats.MaxOpenConnections), metric.WithAttributes(state.String("max")))
		o.ObserveInt64(waits, stats.WaitCount)
		o.ObserveFloat64(waitTime, stats.WaitDuration.Seconds())
		return nil
	}, open, waits, waitTime)
	return err
}
