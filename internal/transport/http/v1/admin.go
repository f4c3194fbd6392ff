package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
)

// GetConfig returns the chatbot config, creating the default if absent.
// GET /api/chatbot/config
func (h *Handler) GetConfig(c echo.Context) error {
	cfg, err := h.service.GetConfig(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateConfig applies a partial config update.
// POST /api/chatbot/config
func (h *Handler) UpdateConfig(c echo.Context) error {
	var patch domain.ConfigPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	cfg, err := h.service.UpdateConfig(ctx, patch, identity.FromContext(ctx).Email)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// TestModel sends a message straight to the model.
// POST /api/chatbot/test
func (h *Handler) TestModel(c echo.Context) error {
	var req domain.TestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}

	resp, err := h.service.TestModel(c.Request().Context(), req.Message)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetAnalytics returns usage aggregates.
// GET /api/chatbot/analytics
func (h *Handler) GetAnalytics(c echo.Context) error {
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	stats, err := h.service.GetAnalytics(c.Request().Context(), limit)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
