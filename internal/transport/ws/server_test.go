package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/policy"
	"github.com/xiaot623/gogo/gallerybot/internal/ratelimit"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
	v1 "github.com/xiaot623/gogo/gallerybot/internal/transport/http/v1"
	"github.com/xiaot623/gogo/gallerybot/tests/helpers"
)

type testServer struct {
	url string
	hub *Hub
}

func newTestServer(t *testing.T, quota int) *testServer {
	t.Helper()
	ctx := context.Background()

	db := helpers.NewTestSQLiteStore(t)
	svc := service.New(db, llm.NewMockClient(), config.Default(), zap.NewNop())
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	limiter := ratelimit.NewFixedWindow(time.Minute, quota)
	hub := NewHub()
	wsServer := NewServer(config.Default().WS, hub, svc, limiter, zap.NewNop())
	h := v1.NewHandler(svc, limiter, identity.NewAuthenticator(""), engine, zap.NewNop())

	e := echo.New()
	wsServer.RegisterRoutes(e, h.Authenticate)

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		svc.Close()
	})
	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chatbot/ws", hub: hub}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketChatTurn(t *testing.T) {
	ts := newTestServer(t, 8)
	conn := dial(t, ts.url)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: TypeChat, Message: "How do commissions work?"}))

	var reply ReplyFrame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeReply, reply.Type)
	assert.Equal(t, domain.IntentArtist, reply.Intent)
	assert.Contains(t, reply.Response, "[MOCK]")
	assert.Equal(t, "ip-127-0-0-1", reply.SessionKey)
	assert.False(t, reply.Ended)
}

func TestWebSocketRejectsUnknownFrames(t *testing.T) {
	ts := newTestServer(t, 8)
	conn := dial(t, ts.url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var frame ErrorFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, TypeError, frame.Type)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: "dance"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Contains(t, frame.Error, "unknown message type")
}

func TestWebSocketRateLimited(t *testing.T) {
	ts := newTestServer(t, 1)
	conn := dial(t, ts.url)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: TypeChat, Message: "hi"}))
	var reply ReplyFrame
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeReply, reply.Type)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: TypeChat, Message: "hi again"}))
	var frame ErrorFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, TypeError, frame.Type)
	assert.Greater(t, frame.RetryAfter, 0)
}

func TestWebSocketBroadcastsToSessionTabs(t *testing.T) {
	ts := newTestServer(t, 8)
	first := dial(t, ts.url)
	second := dial(t, ts.url)

	require.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.hub.SessionCount())

	require.NoError(t, first.WriteJSON(ClientFrame{Type: TypeChat, Message: "hello"}))

	var a, b ReplyFrame
	require.NoError(t, first.ReadJSON(&a))
	require.NoError(t, second.ReadJSON(&b))
	assert.Equal(t, a.Response, b.Response)
}
