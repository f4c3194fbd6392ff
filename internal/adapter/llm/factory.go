package llm

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/gallerybot/internal/config"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "GALLERYBOT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewClient creates a model client from cfg. GALLERYBOT_MODE=MOCK, llm.mode
// MOCK, or a missing API key all select the MockClient.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		mode = cfg.Mode
	}

	if strings.EqualFold(mode, ModeMock) {
		logger.Info("mock mode detected, using mock LLM client")
		return NewMockClient(), nil
	}
	if cfg.APIKey == "" {
		logger.Warn("no LLM API key configured, using mock LLM client")
		return NewMockClient(), nil
	}

	return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.Timeout)
}
