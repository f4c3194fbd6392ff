package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

const testModelSystemPrompt = "You are a helpful assistant. Answer briefly."

// TestModel sends message straight to the model, bypassing sessions and config.
func (s *Service) TestModel(ctx context.Context, message string) (*domain.TestResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	raw, err := s.llmClient.Generate(ctx, &llm.GenerateRequest{
		Model:       s.config.LLM.Model,
		System:      testModelSystemPrompt,
		Message:     message,
		Temperature: domain.DefaultTemperature,
	})
	if err != nil {
		s.logger.Error("test model call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	return &domain.TestResponse{Response: raw}, nil
}
