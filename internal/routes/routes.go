package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angple/kb-engine/internal/handler"
	"github.com/angple/kb-engine/internal/middleware"
)

// SetupOps configures the operational endpoints
func SetupOps(router *gin.Engine, health *handler.HealthHandler) {
	router.Use(middleware.RequestLogger(), middleware.Metrics())

	router.GET("/healthz", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
