package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/prompt"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
)

// ErrorStatus maps a service error to an HTTP status and a client-safe message.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMessageTooLong),
		errors.Is(err, service.ErrInvalidConfig):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrNoIdentity):
		return http.StatusBadRequest, "could not identify caller"
	case errors.Is(err, prompt.ErrPromptTooLarge):
		return http.StatusRequestEntityTooLarge, "conversation is too long to process"
	case errors.Is(err, service.ErrChatbotDisabled):
		return http.StatusServiceUnavailable, "chatbot is currently disabled"
	case errors.Is(err, service.ErrLLMFailed):
		return http.StatusInternalServerError, service.ErrLLMFailed.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handler) writeError(c echo.Context, err error) error {
	status, msg := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(status, domain.ErrorResponse{Error: msg})
}
