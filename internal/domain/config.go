package domain

import "time"

// FAQ is an operator-maintained question/answer pair fed to the prompt.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// ChatbotConfig is the singleton operator configuration.
type ChatbotConfig struct {
	SystemPrompt string    `json:"systemPrompt"`
	FAQs         []FAQ     `json:"faqs"`
	Temperature  float64   `json:"temperature"`
	Enabled      bool      `json:"enabled"`
	UpdatedAt    time.Time `json:"updatedAt"`
	UpdatedBy    string    `json:"updatedBy,omitempty"`
}

// ConfigPatch is a partial update; nil fields are left unchanged.
type ConfigPatch struct {
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
	FAQs         *[]FAQ   `json:"faqs,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// DefaultSystemPrompt is the baseline instruction used until an operator edits it.
const DefaultSystemPrompt = "You are the friendly assistant of an online art marketplace. " +
	"Help visitors discover artworks, understand commissions, and find their way around orders, shipping and payments. " +
	"Be concise, warm and accurate. If you do not know something, say so and point the visitor to support."

// DefaultTemperature is the sampling temperature of a fresh config.
const DefaultTemperature = 0.6

// DefaultChatbotConfig returns the config created on first read.
func DefaultChatbotConfig() *ChatbotConfig {
	return &ChatbotConfig{
		SystemPrompt: DefaultSystemPrompt,
		FAQs:         []FAQ{},
		Temperature:  DefaultTemperature,
		Enabled:      true,
		UpdatedAt:    time.Now(),
	}
}

// Apply merges the patch into cfg.
func (p ConfigPatch) Apply(cfg *ChatbotConfig) {
	if p.SystemPrompt != nil {
		cfg.SystemPrompt = *p.SystemPrompt
	}
	if p.FAQs != nil {
		cfg.FAQs = append([]FAQ{}, (*p.FAQs)...)
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
}
