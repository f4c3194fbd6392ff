package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/policy"
)

// Authenticate resolves the caller from the bearer token and client address
// and stores it in the request context. Requests without a token continue
// anonymously; requests with a bad token are rejected.
func (h *Handler) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller := identity.Caller{Address: c.RealIP()}

		claims, err := h.auth.ParseAuthorization(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Error: "invalid or expired token"})
		}
		if claims != nil {
			caller.Email = claims.Email
			caller.Role = claims.Role
		}

		req := c.Request()
		c.SetRequest(req.WithContext(identity.WithCaller(req.Context(), caller)))
		return next(c)
	}
}

// RateLimit rejects callers that exceeded their per-address quota.
func (h *Handler) RateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		d := h.limiter.Check(c.RealIP())
		if !d.Allowed {
			retry := d.RetryAfterSeconds()
			c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
			return c.JSON(http.StatusTooManyRequests, domain.ErrorResponse{
				Error:      "too many requests, please slow down",
				RetryAfter: retry,
			})
		}
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		return next(c)
	}
}

// RequireAdmin lets the request through only if the policy allows action.
func (h *Handler) RequireAdmin(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			caller := identity.FromContext(ctx)
			if !caller.Authenticated() {
				return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{Error: "authentication required"})
			}

			allowed, err := h.policy.Allow(ctx, policy.Input{Action: action, Role: caller.Role, Email: caller.Email})
			if err != nil {
				h.logger.Error("policy evaluation failed", zap.String("action", action), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "authorization failed"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, domain.ErrorResponse{Error: "forbidden"})
			}
			return next(c)
		}
	}
}
