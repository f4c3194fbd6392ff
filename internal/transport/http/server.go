// Package http provides the HTTP server for the chatbot service.
package http

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/policy"
	"github.com/xiaot623/gogo/gallerybot/internal/ratelimit"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
	v1 "github.com/xiaot623/gogo/gallerybot/internal/transport/http/v1"
	"github.com/xiaot623/gogo/gallerybot/internal/transport/ws"
)

// Deps bundles what the server needs besides the service.
type Deps struct {
	Limiter ratelimit.Limiter
	Auth    *identity.Authenticator
	Policy  *policy.Engine
	WS      *ws.Server
	Logger  *zap.Logger
	// TrustedProxies are the peers allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// NewServer creates and configures the public HTTP server.
func NewServer(svc *service.Service, deps Deps) (*echo.Echo, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	extractor, err := ipExtractor(deps.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractor

	// Middleware
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, deps.Limiter, deps.Auth, deps.Policy, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	if deps.WS != nil {
		deps.WS.RegisterRoutes(e, v1Handler.Authenticate)
	}

	return e, nil
}

// ipExtractor resolves the client address used for session keys and rate
// limiting. Without trusted proxies only the socket peer counts; otherwise
// X-Forwarded-For is walked back through the trusted ranges.
func ipExtractor(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ipNet, err := parseTrustedProxy(entry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func parseTrustedProxy(entry string) (*net.IPNet, error) {
	if !strings.Contains(entry, "/") {
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		if ip.To4() != nil {
			return &net.IPNet{IP: ip.To4(), Mask: net.CIDRMask(32, 32)}, nil
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
	}
	_, ipNet, err := net.ParseCIDR(entry)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
	}
	return ipNet, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
