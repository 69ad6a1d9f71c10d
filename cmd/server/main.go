package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/bootstrap"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/logger"
	"github.com/beautyops/backend/internal/infrastructure/migration"
	"github.com/beautyops/backend/internal/infrastructure/scheduler"
	"github.com/beautyops/backend/internal/infrastructure/telemetry"
	"github.com/beautyops/backend/internal/interfaces/http/handler"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
	"github.com/beautyops/backend/internal/interfaces/http/router"
	"github.com/beautyops/backend/migrations"
)

// healthPaths are neither logged, traced nor profiled
var healthPaths = []string{"/health", "/api/v1/system/ping"}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	// Telemetry providers are no-ops when disabled
	providers, err := telemetry.Setup(context.Background(), cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			baseLog.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log := providers.Logs.Bridge(baseLog, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting order sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	// Initialize database connection
	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Refuse to serve against a schema older than the shipped migrations
	schema, err := migration.CheckSchema(context.Background(), db.DB, migrations.Files)
	if err != nil {
		log.Fatal("Database schema is not at head, run migrate up",
			zap.Uint("current", schema.Current),
			zap.Uint("latest", schema.Latest),
			zap.Int("pending", schema.Pending),
			zap.Error(err))
	}
	log.Info("Database schema at head", zap.Uint("version", schema.Current))

	// Wire the sync pipeline
	meter := providers.Meter.Meter("github.com/beautyops/backend")
	stack, err := bootstrap.NewStack(context.Background(), cfg, bootstrap.Options{
		DB:     db.DB,
		Logger: log,
		Meter:  meter,
	})
	if err != nil {
		log.Fatal("Failed to initialize order sync", zap.Error(err))
	}
	defer func() {
		if err := stack.Close(context.Background()); err != nil {
			log.Error("Error closing order sync resources", zap.Error(err))
		}
	}()

	// Initialize order sync scheduler (if enabled)
	var schedulerHandler *handler.SchedulerHandler
	if cfg.Scheduler.Enabled {
		executor := scheduler.NewOrchestratorExecutor(stack.Orchestrator, scheduler.CredentialsFromConfig(cfg), log)
		syncScheduler, err := scheduler.NewOrderSyncScheduler(
			scheduler.OrderSyncSchedulerConfigFrom(cfg.Scheduler, stack.Orchestrator.Location()),
			executor, log.Named("scheduler"))
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start order sync scheduler", zap.Error(err))
		}
		defer func() {
			if err := syncScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping order sync scheduler", zap.Error(err))
			}
		}()

		trigger := scheduler.NewOrderSyncCronTrigger(
			scheduler.OrderSyncCronTriggerConfigFrom(cfg.Scheduler, log),
			syncScheduler, log.Named("cron"))
		if err := trigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start order sync trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping order sync trigger", zap.Error(err))
			}
		}()

		schedulerHandler = handler.NewSchedulerHandler(syncScheduler, log)
		log.Info("Order sync scheduler started",
			zap.Int("max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs),
			zap.Duration("interval", cfg.Scheduler.Interval),
			zap.Strings("channels", cfg.Scheduler.Channels),
		)
	}

	// Initialize HTTP handlers
	syncHandler := handler.NewOrderSyncHandler(stack.Orchestrator, handler.WithOrderSyncLogger(log))
	orderHandler := handler.NewOrderHandler(stack.Orders, stack.Orchestrator.Location(), log)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, stack.Orchestrator.Mode(), db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Root span per request, enriched with the request ID
	// 3. Recovery - Catch panics
	// 4. Logger - Log requests
	// 5. Metrics and profiling labels
	// 6. Security, CORS, body limit and rate limit
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   healthPaths,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithSkipPaths(healthPaths...)))
	engine.Use(middleware.HTTPMetrics(meter))
	engine.Use(middleware.Profiling(middleware.ProfilingConfig{
		Enabled:   providers.Profiler.IsEnabled(),
		SkipPaths: healthPaths,
	}))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-Sync-Run-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.OrderSyncRoutes(syncHandler, schedulerHandler)).
		Register(router.OrderRoutes(orderHandler)).
		Register(router.SystemRoutes(systemHandler))
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("mode", stack.Orchestrator.Mode().String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
