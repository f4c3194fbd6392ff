package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

const (
	minTemperature = 0.0
	maxTemperature = 2.0
)

// GetConfig returns the chatbot config, creating the default on first read.
// Concurrent first reads share a single insert.
func (s *Service) GetConfig(ctx context.Context) (*domain.ChatbotConfig, error) {
	cfg, err := s.store.GetChatbotConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chatbot config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}

	v, err, _ := s.configGroup.Do("chatbot_config", func() (interface{}, error) {
		defaults := domain.DefaultChatbotConfig()
		defaults.UpdatedAt = s.now()
		return s.store.EnsureChatbotConfig(ctx, defaults)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chatbot config: %w", err)
	}
	return v.(*domain.ChatbotConfig), nil
}

// UpdateConfig applies patch and records who changed it.
func (s *Service) UpdateConfig(ctx context.Context, patch domain.ConfigPatch, updatedBy string) (*domain.ChatbotConfig, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(cfg)
	if err := s.assembler.Check(cfg, s.config.Chat.MaxMessageChars); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.UpdatedAt = s.now()
	cfg.UpdatedBy = updatedBy

	if err := s.store.SaveChatbotConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save chatbot config: %w", err)
	}
	return cfg, nil
}

func validatePatch(patch domain.ConfigPatch) error {
	if patch.Temperature != nil {
		if t := *patch.Temperature; t < minTemperature || t > maxTemperature {
			return fmt.Errorf("%w: temperature must be between %.0f and %.0f", ErrInvalidConfig, minTemperature, maxTemperature)
		}
	}
	if patch.FAQs != nil {
		for i, faq := range *patch.FAQs {
			if strings.TrimSpace(faq.Question) == "" || strings.TrimSpace(faq.Answer) == "" {
				return fmt.Errorf("%w: faq %d needs a question and an answer", ErrInvalidConfig, i)
			}
		}
	}
	return nil
}
