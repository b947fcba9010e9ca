package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMarkSlowQuery(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	db := newSQLiteDB(t)

	run := func(threshold time.Duration, dbErr error) sdktrace.ReadOnlySpan {
		ctx, span := tp.Tracer("test").Start(context.Background(), "query")
		ctx = context.WithValue(ctx, dbStartKey{}, time.Now().Add(-50*time.Millisecond))
		tx := db.Session(&gorm.Session{NewDB: true})
		tx.Statement.Context = ctx
		tx.Statement.Table = "user_settings"
		tx.Statement.RowsAffected = 1
		tx.Error = dbErr
		markSlowQuery(tx, threshold)
		span.End()
		ended := recorder.Ended()
		return ended[len(ended)-1]
	}

	t.Run("slow statement gets an event", func(t *testing.T) {
		span := run(10*time.Millisecond, nil)
		slow, ok := spanAttr(span, "db.slow_query")
		require.True(t, ok)
		assert.True(t, slow.AsBool())
		table, _ := spanAttr(span, "db.sql.table")
		assert.Equal(t, "user_settings", table.AsString())
		require.Len(t, span.Events(), 1)
		assert.Equal(t, "slow_query", span.Events()[0].Name)
	})

	t.Run("fast statement is left alone", func(t *testing.T) {
		span := run(time.Minute, nil)
		_, ok := spanAttr(span, "db.slow_query")
		assert.False(t, ok)
		assert.Empty(t, span.Events())
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		span := run(time.Minute, gorm.ErrRecordNotFound)
		assert.Equal(t, codes.Unset, span.Status().Code)
	})

	t.Run("other errors mark the span", func(t *testing.T) {
		span := run(time.Minute, errors.New("connection reset"))
		assert.Equal(t, codes.Error, span.Status().Code)
	})
}

func TestInstrumentDB(t *testing.T) {
	t.Run("tracing produces statement spans", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		db := newSQLiteDB(t)

		require.NoError(t, InstrumentDB(db, nil, DBConfig{Tracing: true, TracerProvider: tp, DBName: "sqlite"}, nil))
		require.NoError(t, db.WithContext(context.Background()).Exec("SELECT 1").Error)
		assert.NotEmpty(t, recorder.Ended())
	})

	t.Run("pool gauges are observable", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		db := newSQLiteDB(t)

		require.NoError(t, InstrumentDB(db, mp.Meter("test"), DBConfig{}, nil))

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		names := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				names[m.Name] = true
			}
		}
		assert.True(t, names["rosterlink_db_pool_connections"])
		assert.True(t, names["rosterlink_db_pool_wait_total"])
	})
}
