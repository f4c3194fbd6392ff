package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
	"github.com/xiaot623/gogo/gallerybot/internal/prompt"
)

// SessionEndedReply is returned once a session has reached its turn limit.
const SessionEndedReply = "This conversation has reached its limit. Please contact our support team for further help."

// HandleTurn runs one chat turn for sessionKey.
func (s *Service) HandleTurn(ctx context.Context, sessionKey, message string) (*domain.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if limit := s.config.Chat.MaxMessageChars; limit > 0 && utf8.RuneCountInString(message) > limit {
		return nil, fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, limit)
	}

	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrChatbotDisabled
	}

	if _, err := s.store.GetOrCreateSession(ctx, sessionKey); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	count, err := s.store.CountMessages(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if s.state(count) == domain.SessionStateEnded {
		return &domain.ChatResponse{
			Response:   SessionEndedReply,
			Intent:     domain.IntentAdmin,
			Ended:      true,
			SessionKey: sessionKey,
		}, nil
	}

	history, err := s.store.GetMessages(ctx, sessionKey, s.config.Chat.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	p, err := s.assembler.Assemble(cfg, history, message)
	if err != nil {
		return nil, err
	}

	raw, err := s.llmClient.Generate(ctx, s.generateRequest(p, cfg.Temperature))
	if err != nil {
		s.logger.Error("model call failed", zap.String("session_key", sessionKey), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	reply := prompt.Parse(raw)

	now := s.now()
	userMsg := &domain.Message{
		MessageID: newMessageID(),
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}
	assistantMsg := &domain.Message{
		MessageID: newMessageID(),
		Role:      domain.RoleAssistant,
		Content:   reply.Text,
		Intent:    reply.Intent,
		CreatedAt: now,
	}
	if err := s.store.AppendTurn(ctx, sessionKey, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to save turn: %w", err)
	}

	s.triggerSweep()

	return &domain.ChatResponse{
		Response:   reply.Text,
		Intent:     reply.Intent,
		Ended:      s.state(count+2) == domain.SessionStateEnded,
		SessionKey: sessionKey,
	}, nil
}

// GetHistory returns the stored messages of sessionKey.
func (s *Service) GetHistory(ctx context.Context, sessionKey string) (*domain.HistoryResponse, error) {
	messages, err := s.store.GetMessages(ctx, sessionKey, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return &domain.HistoryResponse{
		SessionKey: sessionKey,
		Messages:   messages,
		Ended:      s.state(len(messages)) == domain.SessionStateEnded,
	}, nil
}

func (s *Service) state(stored int) domain.SessionState {
	switch {
	case stored == 0:
		return domain.SessionStateNew
	case stored >= s.config.Chat.MaxTurnMessages:
		return domain.SessionStateEnded
	default:
		return domain.SessionStateActive
	}
}

func (s *Service) generateRequest(p *prompt.Prompt, temperature float64) *llm.GenerateRequest {
	history := make([]llm.Message, 0, len(p.History))
	for _, t := range p.History {
		history = append(history, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return &llm.GenerateRequest{
		Model:       s.config.LLM.Model,
		System:      p.System,
		History:     history,
		Message:     p.Message,
		Temperature: temperature,
	}
}

func newMessageID() string {
	return "msg_" + uuid.New().String()
}
