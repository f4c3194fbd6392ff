package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/prompt"
	"github.com/xiaot623/gogo/gallerybot/internal/repository"
)

var (
	ErrLLMFailed       = errors.New("LLM processing failed")
	ErrChatbotDisabled = errors.New("chatbot is disabled")
	ErrInvalidConfig   = errors.New("invalid chatbot config")
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
)

type Service struct {
	store     store.Store
	llmClient llm.Client
	assembler *prompt.Assembler
	config    *config.Config
	logger    *zap.Logger
	now       func() time.Time

	configGroup singleflight.Group
	sweeping    atomic.Bool
	sweeps      sync.WaitGroup
}

func New(store store.Store, llmClient llm.Client, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		llmClient: llmClient,
		assembler: prompt.NewAssembler(cfg.Prompt.MaxChars),
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Close waits for in-flight background sweeps to finish.
func (s *Service) Close() {
	s.sweeps.Wait()
}
