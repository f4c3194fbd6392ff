// Package ws provides the WebSocket chat channel.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/ratelimit"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
	v1 "github.com/xiaot623/gogo/gallerybot/internal/transport/http/v1"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      config.WSConfig
	hub      *Hub
	service  *service.Service
	limiter  ratelimit.Limiter
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg config.WSConfig, h *Hub, svc *service.Service, limiter ratelimit.Limiter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.Default().WS
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		limiter: limiter,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint. m must resolve the caller
// into the request context.
func (s *Server) RegisterRoutes(e *echo.Echo, m ...echo.MiddlewareFunc) {
	e.GET("/api/chatbot/ws", s.HandleWebSocket, m...)
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	caller := identity.FromContext(ctx)
	key, err := identity.SessionKey(caller)
	if err != nil {
		status, msg := v1.ErrorStatus(err)
		return c.JSON(status, domain.ErrorResponse{Error: msg})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, key, caller.Address)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	s.readPump(ctx, conn)
	return nil
}

// readPump reads frames until the connection fails or closes.
func (s *Server) readPump(ctx context.Context, conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}

		s.handleMessage(ctx, conn, message)
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client frame.
func (s *Server) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(conn, "invalid JSON message", 0)
		return
	}

	switch frame.Type {
	case TypeChat:
		s.handleChat(ctx, conn, frame)
	default:
		s.sendError(conn, "unknown message type: "+frame.Type, 0)
	}
}

// handleChat runs a turn. Turns on one connection are processed in order.
func (s *Server) handleChat(ctx context.Context, conn *Connection, frame ClientFrame) {
	if d := s.limiter.Check(conn.Address); !d.Allowed {
		s.sendError(conn, "too many requests, please slow down", d.RetryAfterSeconds())
		return
	}

	resp, err := s.service.HandleTurn(ctx, conn.SessionKey, frame.Message)
	if err != nil {
		status, msg := v1.ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("websocket turn failed", zap.String("session_key", conn.SessionKey), zap.Error(err))
		}
		s.sendError(conn, msg, 0)
		return
	}

	reply := ReplyFrame{
		Type:         TypeReply,
		Ts:           time.Now().UnixMilli(),
		ChatResponse: *resp,
	}
	if err := s.hub.BroadcastJSON(conn.SessionKey, reply); err != nil {
		s.logger.Error("failed to encode reply", zap.Error(err))
	}
}

// sendError sends an error frame to a single connection.
func (s *Server) sendError(conn *Connection, message string, retryAfter int) {
	errFrame := ErrorFrame{
		Type:       TypeError,
		Ts:         time.Now().UnixMilli(),
		Error:      message,
		RetryAfter: retryAfter,
	}
	if err := s.hub.SendJSONToConnection(conn, errFrame); err != nil {
		s.logger.Warn("failed to queue error frame", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}
