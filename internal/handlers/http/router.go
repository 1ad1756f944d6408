package http

import (
	"net/http"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/internal/core/services"
	"confline/internal/infrastructure/middleware"
	"confline/internal/infrastructure/monitoring"
	"confline/internal/infrastructure/signal"
	"confline/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config      *config.Config
	Identity    domain.Identity
	Tokens      *services.TokenService
	Conferences ports.ConferenceService
	Session     ports.SessionService
	Health      *monitoring.HealthChecker

	// Optional.
	Metrics http.Handler
	Hub     *signal.Hub

	Logger *zap.SugaredLogger
}

// NewRouter assembles the control API. Probes, metrics, the token endpoint
// and the embedded room hub stay outside the bearer check.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(d.Logger),
		middleware.TracingMiddleware(),
		middleware.LoggingMiddleware(d.Logger),
		middleware.ErrorHandlerMiddleware(d.Logger),
		middleware.NewHTTPRateLimitMiddleware(d.Config),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		status := d.Health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.Hub != nil {
		router.GET("/surface", gin.WrapF(d.Hub.HandleWebSocket))
	}

	NewTokenHandler(d.Tokens, d.Identity).SetupRoutes(router)

	api := router.Group("")
	api.Use(middleware.AuthMiddleware(d.Tokens, d.Identity.UserID, d.Config.Control.RequireToken))
	NewConferenceHandler(d.Conferences).SetupRoutes(api)
	NewSessionHandler(d.Session, d.Logger).SetupRoutes(api)

	return router
}
