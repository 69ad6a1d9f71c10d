// Package bootstrap assembles the order sync pipeline from configuration.
// The server, the CLI and the integration tests share it so every process
// wires transports, locking and archiving the same way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beautyops/backend/internal/application/ordersync"
	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/cache"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
	"github.com/beautyops/backend/internal/infrastructure/logger"
	"github.com/beautyops/backend/internal/infrastructure/persistence"
	"github.com/beautyops/backend/internal/infrastructure/relay"
	"github.com/beautyops/backend/internal/infrastructure/storage"
	"github.com/beautyops/backend/internal/infrastructure/telemetry"
)

// OpenDatabase connects to PostgreSQL with the zap-backed GORM logger and,
// when enabled, otelgorm tracing.
func OpenDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	return persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithTracing(telemetry.DBTracingConfigFrom(cfg.Telemetry, "postgresql"), log),
	)
}

// Options are the process-level dependencies of a Stack
type Options struct {
	DB     *gorm.DB
	Logger *zap.Logger
	// Meter enables sync metrics when set
	Meter metric.Meter
}

// Stack is the wired order sync pipeline of one process
type Stack struct {
	Orchestrator *ordersync.Orchestrator
	Orders       integration.OrderRepository
	Runs         integration.SyncRunRepository
	// Feed is nil in relay mode
	Feed    *ecommerce.NaverFeed
	closers []func(context.Context) error
}

// NewStack builds the orchestrator and its collaborators. Relay mode is
// selected when the proxy URL and key are both configured.
func NewStack(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DB == nil {
		return nil, errors.New("bootstrap: database is required")
	}

	loc := cfg.Naver.Location()
	s := &Stack{
		Orders: persistence.NewGormOrderRepository(opts.DB, loc),
		Runs:   persistence.NewGormSyncRunRepository(opts.DB),
	}
	orchestratorOpts := []ordersync.Option{
		ordersync.WithRunLog(s.Runs),
		ordersync.WithLogger(log),
	}

	locker, err := cache.NewRunLockerFactory(cfg.Redis, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		return nil, err
	}
	if c, ok := locker.(io.Closer); ok {
		s.closers = append(s.closers, func(context.Context) error { return c.Close() })
	}
	orchestratorOpts = append(orchestratorOpts, ordersync.WithRunLocker(locker))

	archive, err := storage.NewPayloadArchive(ctx, &cfg.Archive, log)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("payload archive: %w", err)
	}
	if m, ok := archive.(*storage.MongoPayloadArchive); ok {
		s.closers = append(s.closers, m.Close)
	}
	orchestratorOpts = append(orchestratorOpts, ordersync.WithArchive(archive))

	var metrics *telemetry.SyncMetrics
	if opts.Meter != nil {
		if metrics, err = telemetry.NewSyncMetrics(opts.Meter); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		orchestratorOpts = append(orchestratorOpts, ordersync.WithMetrics(metrics))
	}

	if cfg.Proxy.Enabled() {
		client, err := relay.NewClient(relay.ConfigFrom(cfg.Proxy, loc), nil, log.Named("relay"))
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		orchestratorOpts = append(orchestratorOpts, ordersync.WithRelay(client))
	} else {
		feed, err := ecommerce.NewNaverFeed(ecommerce.NaverConfigFrom(cfg.Naver), nil, log.Named("naver"))
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		if metrics != nil {
			feed.Client().SetCallObserver(metrics.UpstreamCallObserver(integration.ChannelNaver))
		}
		s.Feed = feed
		orchestratorOpts = append(orchestratorOpts, ordersync.WithFeed(feed))
	}

	s.Orchestrator = ordersync.NewOrchestrator(ordersync.Config{
		Location:       loc,
		LockTTL:        cfg.Sync.LockTTL,
		ProgressBuffer: cfg.Sync.ProgressBuffer,
	}, s.Orders, orchestratorOpts...)

	log.Info("Order sync pipeline ready",
		zap.String("mode", s.Orchestrator.Mode().String()),
		zap.String("archive", archiveDriver(cfg.Archive.Driver)),
		zap.Bool("redis_lock", cfg.Redis.Host != ""),
		zap.String("timezone", loc.String()))
	return s, nil
}

// Close releases the locker and archive connections
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

func archiveDriver(driver string) string {
	if driver == "" {
		return config.ArchiveDriverNone
	}
	return driver
}
