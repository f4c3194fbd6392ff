// Package v1 provides the chatbot HTTP API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/policy"
	"github.com/xiaot623/gogo/gallerybot/internal/ratelimit"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	limiter ratelimit.Limiter
	auth    *identity.Authenticator
	policy  *policy.Engine
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, limiter ratelimit.Limiter, auth *identity.Authenticator, engine *policy.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: svc,
		limiter: limiter,
		auth:    auth,
		policy:  engine,
		logger:  logger,
	}
}

// RegisterRoutes registers the chatbot routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/chatbot", h.Authenticate)

	// Public
	g.POST("", h.Chat, h.RateLimit)
	g.GET("/config", h.GetConfig)
	g.GET("/history", h.GetHistory)

	// Admin
	g.POST("/config", h.UpdateConfig, h.RateLimit, h.RequireAdmin(domain.ActionUpdateConfig))
	g.POST("/test", h.TestModel, h.RateLimit, h.RequireAdmin(domain.ActionTestModel))
	g.GET("/analytics", h.GetAnalytics, h.RequireAdmin(domain.ActionReadAnalytics))
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": config.Version,
	})
}
