package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulsefeed/internal/handler"
)

func SetupRoutes(e *echo.Echo, feedHandler *handler.FeedHandler) {
	e.GET("/healthz", feedHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/feed", feedHandler.GetFeed)
	api.GET("/feed/stream", feedHandler.StreamFeed)
	api.GET("/cache/report", feedHandler.CacheReport)
	api.DELETE("/cache/users/:user_id", feedHandler.InvalidateUserCache)
}
