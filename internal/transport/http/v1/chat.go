package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
)

// Chat runs one chatbot turn.
// POST /api/chatbot
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	key, err := identity.SessionKey(identity.FromContext(ctx))
	if err != nil {
		return h.writeError(c, err)
	}
	if req.SessionKey != "" && req.SessionKey != key {
		h.logger.Debug("ignoring client session key", zap.String("session_key", key))
	}

	resp, err := h.service.HandleTurn(ctx, key, req.Message)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetHistory returns the caller's own conversation.
// GET /api/chatbot/history
func (h *Handler) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := identity.SessionKey(identity.FromContext(ctx))
	if err != nil {
		return h.writeError(c, err)
	}

	history, err := h.service.GetHistory(ctx, key)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}
