package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beautyops/backend/internal/infrastructure/config"
)

type queryStartTimeKeyType struct{}

var queryStartTimeKey = queryStartTimeKeyType{}

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // Include bound variables in spans (dev only)
	SlowQueryThresh time.Duration // Threshold for marking queries as slow
	DBSystem        string
}

// DBTracingConfigFrom derives the database tracing settings from telemetry config
func DBTracingConfigFrom(cfg config.TelemetryConfig, dbSystem string) DBTracingConfig {
	thresh := cfg.DBSlowQueryThresh
	if thresh <= 0 {
		thresh = 200 * time.Millisecond
	}
	return DBTracingConfig{
		Enabled:         cfg.Enabled && cfg.DBTraceEnabled,
		LogFullSQL:      cfg.DBLogFullSQL,
		SlowQueryThresh: thresh,
		DBSystem:        dbSystem,
	}
}

// RegisterDBTracing installs otelgorm plus slow-query marking on db.
// It is a no-op when tracing is disabled.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	t := &slowQueryTracer{thresh: cfg.SlowQueryThresh}
	cb := db.Callback()
	registrations := []struct {
		before, after func() error
	}{
		{
			func() error { return cb.Create().Before("gorm:create").Register("otel_timing:before_create", t.before) },
			func() error { return cb.Create().After("gorm:create").Register("otel_slow_query:create", t.after) },
		},
		{
			func() error { return cb.Query().Before("gorm:query").Register("otel_timing:before_query", t.before) },
			func() error { return cb.Query().After("gorm:query").Register("otel_slow_query:query", t.after) },
		},
		{
			func() error { return cb.Update().Before("gorm:update").Register("otel_timing:before_update", t.before) },
			func() error { return cb.Update().After("gorm:update").Register("otel_slow_query:update", t.after) },
		},
		{
			func() error { return cb.Row().Before("gorm:row").Register("otel_timing:before_row", t.before) },
			func() error { return cb.Row().After("gorm:row").Register("otel_slow_query:row", t.after) },
		},
		{
			func() error { return cb.Raw().Before("gorm:raw").Register("otel_timing:before_raw", t.before) },
			func() error { return cb.Raw().After("gorm:raw").Register("otel_slow_query:raw", t.after) },
		},
	}
	for _, r := range registrations {
		if err := r.before(); err != nil {
			return err
		}
		if err := r.after(); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

type slowQueryTracer struct {
	thresh time.Duration
}

func (t *slowQueryTracer) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (t *slowQueryTracer) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > t.thresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", t.thresh.Milliseconds()),
			))
		}
	}
}
