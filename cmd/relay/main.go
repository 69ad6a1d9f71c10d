// Command relay runs the Naver pipeline on a host with a whitelisted egress
// IP and serves it to order sync deployments in relay mode.
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

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
	"github.com/beautyops/backend/internal/infrastructure/logger"
	"github.com/beautyops/backend/internal/infrastructure/telemetry"
	"github.com/beautyops/backend/internal/interfaces/http/handler"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
	"github.com/beautyops/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	if cfg.Relay.APIKey == "" {
		baseLog.Fatal("Relay API key is not configured")
	}

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
	log := providers.Logs.Bridge(baseLog, logger.ParseLevel(cfg.Log.Level)).Named("relay")

	feed, err := ecommerce.NewNaverFeed(ecommerce.NaverConfigFrom(cfg.Naver), nil, log.Named("naver"))
	if err != nil {
		log.Fatal("Invalid Naver configuration", zap.Error(err))
	}
	meter := providers.Meter.Meter("github.com/beautyops/backend/relay")
	if metrics, err := telemetry.NewSyncMetrics(meter); err == nil {
		feed.Client().SetCallObserver(metrics.UpstreamCallObserver(integration.ChannelNaver))
	} else {
		log.Warn("Upstream call metrics disabled", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName + "-relay",
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   []string{"/health"},
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithSkipPaths("/health")))
	engine.Use(middleware.HTTPMetrics(meter))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	systemHandler := handler.NewSystemHandler(cfg.App.Name+"-relay", telemetry.ServiceVersion, integration.SyncModeDirect, nil)
	engine.GET("/health", systemHandler.Health)

	relayHandler := handler.NewRelayHandler(feed, cfg.Naver.Location(), log)
	router.RegisterRoot(engine, router.RelayRoutes(relayHandler, cfg.Relay.APIKey))

	srv := &http.Server{
		Addr:              ":" + cfg.Relay.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Relay starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start relay", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down relay...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Relay forced to shutdown", zap.Error(err))
	}
	log.Info("Relay exited gracefully")
}
