package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

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
	"github.com/xiaot623/gogo/gallerybot/internal/repository"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
	"github.com/xiaot623/gogo/gallerybot/tests/helpers"
)

const testSecret = "test-secret"

type stubLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (s *stubLLM) Generate(ctx context.Context, req *llm.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

type testEnv struct {
	e    *echo.Echo
	db   store.Store
	llm  *stubLLM
	auth *identity.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db := helpers.NewTestSQLiteStore(t)
	stub := &stubLLM{reply: `{"reply":"Happy to help!","intent":"general"}`}
	svc := service.New(db, stub, config.Default(), zap.NewNop())
	t.Cleanup(svc.Close)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	auth := identity.NewAuthenticator(testSecret)
	h := NewHandler(svc, ratelimit.NewFixedWindow(15*time.Second, 8), auth, engine, zap.NewNop())

	e := echo.New()
	h.RegisterRoutes(e)
	return &testEnv{e: e, db: db, llm: stub, auth: auth}
}

func (env *testEnv) token(t *testing.T, email, role string) string {
	t.Helper()
	tok, err := env.auth.Issue(email, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestChatAnonymousUsesAddressKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hello"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.ChatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Happy to help!", resp.Response)
	assert.Equal(t, domain.IntentGeneral, resp.Intent)
	assert.False(t, resp.Ended)
	assert.Equal(t, "ip-192-0-2-1", resp.SessionKey)
}

func TestChatAuthenticatedUsesEmail(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "Buyer@Example.com", "customer")

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hello","sessionKey":"someone-else"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ChatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "buyer@example.com", resp.SessionKey)
}

func TestChatRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hello"}`, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("x", 2001)
	rec = env.do(http.MethodPost, "/api/chatbot", `{"message":"`+long+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/chatbot", `{"message":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatLLMFailure(t *testing.T) {
	env := newTestEnv(t)
	env.llm.err = errors.New("upstream down")

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hello"}`, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp domain.ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "LLM processing failed", resp.Error)
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 8; i++ {
		rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hi"}`, "")
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code, "request %d", i+1)
	}

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hi"}`, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp domain.ErrorResponse
	decode(t, rec, &resp)
	assert.Greater(t, resp.RetryAfter, 0)
}

func TestChatDisabled(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "ops@gallery.test", "admin")

	rec := env.do(http.MethodPost, "/api/chatbot/config", `{"enabled":false}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/chatbot", `{"message":"hello"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetConfigPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/chatbot/config", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg domain.ChatbotConfig
	decode(t, rec, &cfg)
	assert.True(t, cfg.Enabled)
	assert.InDelta(t, 0.6, cfg.Temperature, 1e-9)
}

func TestUpdateConfigRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/chatbot/config", `{"temperature":1}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/chatbot/config", `{"temperature":1}`, env.token(t, "a@b.com", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := env.token(t, "ops@gallery.test", "admin")
	rec = env.do(http.MethodPost, "/api/chatbot/config", `{"systemPrompt":"Be brief.","temperature":1}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg domain.ChatbotConfig
	decode(t, rec, &cfg)
	assert.Equal(t, "Be brief.", cfg.SystemPrompt)
	assert.Equal(t, "ops@gallery.test", cfg.UpdatedBy)

	rec = env.do(http.MethodPost, "/api/chatbot/config", `{"temperature":3}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfigKeepsChatUsable(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "ops@gallery.test", "admin")

	body, err := json.Marshal(domain.ConfigPatch{SystemPrompt: ptr(strings.Repeat("p", 17000))})
	require.NoError(t, err)
	rec := env.do(http.MethodPost, "/api/chatbot/config", string(body), admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/chatbot", `{"message":"hi"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func ptr[T any](v T) *T {
	return &v
}

func TestTestModelAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.llm.reply = "pong"

	rec := env.do(http.MethodPost, "/api/chatbot/test", `{"message":"ping"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/chatbot/test", `{"message":"ping"}`, env.token(t, "ops@gallery.test", "admin"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.TestResponse
	decode(t, rec, &resp)
	assert.Equal(t, "pong", resp.Response)
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	env.llm.reply = `{"reply":"ok","intent":"artist"}`

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"How do commissions work?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/chatbot/analytics", "", env.token(t, "a@b.com", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/chatbot/analytics?limit=5", "", env.token(t, "ops@gallery.test", "admin"))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalSessions int                    `json:"totalSessions"`
		Intents       map[string]int         `json:"intents"`
		TopQuestions  []domain.QuestionCount `json:"topQuestions"`
	}
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.Intents["artist"])
	assert.Equal(t, 0, stats.Intents["admin"])
	require.Len(t, stats.TopQuestions, 1)
	assert.Equal(t, "how do commissions work", stats.TopQuestions[0].Question)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "a@b.com", "")

	rec := env.do(http.MethodPost, "/api/chatbot", `{"message":"hello"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/chatbot/history", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)

	var hist domain.HistoryResponse
	decode(t, rec, &hist)
	assert.Equal(t, "a@b.com", hist.SessionKey)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, domain.RoleUser, hist.Messages[0].Role)
	assert.False(t, hist.Ended)

	var raw struct {
		Messages []map[string]interface{} `json:"messages"`
	}
	decode(t, rec, &raw)
	require.Len(t, raw.Messages, 2)
	for _, key := range []string{"messageId", "sessionKey", "role", "content", "createdAt"} {
		assert.Contains(t, raw.Messages[0], key)
	}
	assert.NotContains(t, raw.Messages[0], "session_key")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestErrorStatus(t *testing.T) {
	status, msg := ErrorStatus(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", msg)

	status, _ = ErrorStatus(identity.ErrNoIdentity)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ErrorStatus(service.ErrChatbotDisabled)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
