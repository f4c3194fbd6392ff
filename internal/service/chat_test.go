package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/repository"
	"github.com/xiaot623/gogo/gallerybot/tests/helpers"
)

type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	requests []*llm.GenerateRequest
	reply    string
	err      error
}

func (f *fakeLLM) Generate(ctx context.Context, req *llm.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) LastRequest() *llm.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestService(t *testing.T, client llm.Client) (*Service, *store.SQLiteStore) {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	svc := New(db, client, config.Default(), zap.NewNop())
	t.Cleanup(svc.Close)
	return svc, db
}

func TestHandleTurnStaysActiveUntilCutoff(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: `{"reply":"hello","intent":"general"}`}
	svc, db := newTestService(t, fake)

	for i := 1; i <= 6; i++ {
		resp, err := svc.HandleTurn(ctx, "a@b.com", "message")
		require.NoError(t, err)
		assert.Equal(t, i, fake.Calls())
		assert.Equal(t, "hello", resp.Response)
		assert.Equal(t, i == 6, resp.Ended, "turn %d", i)
	}

	n, err := db.CountMessages(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	resp, err := svc.HandleTurn(ctx, "a@b.com", "one more")
	require.NoError(t, err)
	assert.True(t, resp.Ended)
	assert.Equal(t, SessionEndedReply, resp.Response)
	assert.Equal(t, domain.IntentAdmin, resp.Intent)
	assert.Equal(t, 6, fake.Calls(), "ended sessions must not reach the model")

	n, err = db.CountMessages(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 12, n, "ended turns are not persisted")
}

func TestHandleTurnCommissionScenario(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "```json\n{\"reply\":\"Commissions start with a short brief.\",\"intent\":\"artist\"}\n```"}
	svc, db := newTestService(t, fake)

	resp, err := svc.HandleTurn(ctx, "ip-10-0-0-1", "How do commissions work?")
	require.NoError(t, err)

	assert.Equal(t, domain.IntentArtist, resp.Intent)
	assert.Equal(t, "Commissions start with a short brief.", resp.Response)
	assert.False(t, resp.Ended)
	assert.Equal(t, "ip-10-0-0-1", resp.SessionKey)

	req := fake.LastRequest()
	assert.Contains(t, req.System, "commissions")
	assert.Contains(t, req.System, `"artist"`)
	assert.Equal(t, "How do commissions work?", req.Message)
	assert.Empty(t, req.History)

	messages, err := db.GetMessages(ctx, "ip-10-0-0-1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "How do commissions work?", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, domain.IntentArtist, messages[1].Intent)
	assert.True(t, strings.HasPrefix(messages[1].MessageID, "msg_"))
}

func TestHandleTurnSendsHistory(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: `{"reply":"sure","intent":"general"}`}
	svc, _ := newTestService(t, fake)

	_, err := svc.HandleTurn(ctx, "a@b.com", "first")
	require.NoError(t, err)
	_, err = svc.HandleTurn(ctx, "a@b.com", "second")
	require.NoError(t, err)

	req := fake.LastRequest()
	require.Len(t, req.History, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "first"}, req.History[0])
	assert.Equal(t, llm.Message{Role: llm.RoleModel, Content: "sure"}, req.History[1])
	assert.Equal(t, "second", req.Message)
}

func TestHandleTurnLLMFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{err: errors.New("quota exceeded")}
	svc, db := newTestService(t, fake)

	_, err := svc.HandleTurn(ctx, "a@b.com", "hello")
	assert.ErrorIs(t, err, ErrLLMFailed)

	n, err := db.CountMessages(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleTurnDisabled(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "hi"}
	svc, _ := newTestService(t, fake)

	disabled := false
	_, err := svc.UpdateConfig(ctx, domain.ConfigPatch{Enabled: &disabled}, "admin@gallery.test")
	require.NoError(t, err)

	_, err = svc.HandleTurn(ctx, "a@b.com", "hello")
	assert.ErrorIs(t, err, ErrChatbotDisabled)
	assert.Zero(t, fake.Calls())
}

func TestHandleTurnValidatesMessage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "hi"}
	svc, _ := newTestService(t, fake)

	_, err := svc.HandleTurn(ctx, "a@b.com", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.HandleTurn(ctx, "a@b.com", strings.Repeat("x", svc.config.Chat.MaxMessageChars+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.Zero(t, fake.Calls())
}

func TestHandleTurnPlainTextReply(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "plain text, no json"}
	svc, _ := newTestService(t, fake)

	resp, err := svc.HandleTurn(ctx, "a@b.com", "hello")
	require.NoError(t, err)
	assert.Equal(t, "plain text, no json", resp.Response)
	assert.Equal(t, domain.IntentGeneral, resp.Intent)
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: `{"reply":"hey","intent":"general"}`}
	svc, _ := newTestService(t, fake)

	empty, err := svc.GetHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
	assert.False(t, empty.Ended)

	_, err = svc.HandleTurn(ctx, "a@b.com", "hi")
	require.NoError(t, err)

	hist, err := svc.GetHistory(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "hi", hist.Messages[0].Content)
	assert.Equal(t, "hey", hist.Messages[1].Content)
}

func TestTestModelBypassesSessions(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "pong"}
	svc, db := newTestService(t, fake)

	resp, err := svc.TestModel(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Response)
	assert.Equal(t, testModelSystemPrompt, fake.LastRequest().System)

	n, err := db.CountSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	fake.err = errors.New("boom")
	_, err = svc.TestModel(ctx, "ping")
	assert.ErrorIs(t, err, ErrLLMFailed)
}

func TestOpportunisticSweepPurgesStaleSessions(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: `{"reply":"ok","intent":"general"}`}
	svc, db := newTestService(t, fake)

	stale := &domain.Message{
		MessageID:  "msg_stale",
		SessionKey: "old@b.com",
		Role:       domain.RoleUser,
		Content:    "anyone there?",
		CreatedAt:  time.Now().Add(-72 * time.Hour),
	}
	require.NoError(t, db.CreateMessage(ctx, stale))

	_, err := svc.HandleTurn(ctx, "a@b.com", "hello")
	require.NoError(t, err)
	svc.Close()

	sess, err := db.GetSession(ctx, "old@b.com")
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = db.GetSession(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NotNil(t, sess)
}
