package router

import (
	"github.com/gin-gonic/gin"

	"github.com/beautyops/backend/internal/infrastructure/relay"
	"github.com/beautyops/backend/internal/interfaces/http/handler"
	"github.com/beautyops/backend/internal/interfaces/http/middleware"
)

// OrderSyncRoutes builds the /order-sync group. jobs is nil when the
// background scheduler is disabled.
func OrderSyncRoutes(sync *handler.OrderSyncHandler, jobs *handler.SchedulerHandler) *DomainGroup {
	g := NewDomainGroup("order-sync", "/order-sync")
	g.POST("/runs", sync.Sync)
	g.GET("/runs", sync.ListRuns)
	g.POST("/runs/stream", sync.Stream)
	g.POST("/test", sync.Test)
	g.GET("/channels", sync.Channels)

	if jobs != nil {
		g.Group("jobs", "/jobs").
			POST("", jobs.ScheduleJob).
			GET("", jobs.ListJobs).
			GET("/:id", jobs.GetJob)
	}
	return g
}

// OrderRoutes builds the /orders group
func OrderRoutes(orders *handler.OrderHandler) *DomainGroup {
	return NewDomainGroup("orders", "/orders").
		GET("", orders.ListOrders)
}

// SystemRoutes builds the /system group
func SystemRoutes(system *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", system.GetSystemInfo).
		GET("/ping", system.Ping)
}

// RelayRoutes builds the unversioned relay endpoints, guarded by the proxy key.
// Register the group on the engine root, not under the API version.
func RelayRoutes(h *handler.RelayHandler, apiKey string) *DomainGroup {
	return NewDomainGroup("relay", "").
		Use(middleware.ProxyAPIKey(apiKey)).
		POST(relay.TestPath, h.Test).
		POST(relay.SyncPath, h.Sync)
}

// RegisterRoot mounts registrars directly on the engine
func RegisterRoot(engine *gin.Engine, registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(&engine.RouterGroup)
	}
}
