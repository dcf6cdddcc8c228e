package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/handlers"
	"github.com/onurcolak/collections-worker/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	collectionHandler *handlers.CollectionHandler,
	schedulerHandler *handlers.SchedulerHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)

	v1 := e.Group("/api/v1", middlewares.APIKeyAuth(cfg.Auth.OpsAPIKey))

	collections := v1.Group("/collections")
	collections.GET("/:id/timeline", collectionHandler.GetTimeline)

	schedulerGroup := v1.Group("/scheduler")
	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)
	schedulerGroup.POST("/run", schedulerHandler.RunNow)
}
