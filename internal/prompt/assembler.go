// Package prompt builds model input from operator config and session history,
// and turns raw model output back into a structured reply.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// DefaultMaxChars bounds the assembled prompt when no budget is configured.
const DefaultMaxChars = 16000

// ErrPromptTooLarge is returned when the system text and the new message alone
// exceed the character budget.
var ErrPromptTooLarge = errors.New("prompt exceeds character budget")

// ReplyWordLimit is the reply length the model is asked to respect.
const ReplyWordLimit = 120

// IntentRules is appended to every operator system prompt.
var IntentRules = strings.Join([]string{
	"Respond ONLY with a JSON object of the form {\"reply\": string, \"intent\": \"general\" | \"artist\" | \"admin\"} and nothing else.",
	"Set intent to \"artist\" when the visitor asks about commissions, custom pieces, a specific artist, or becoming an artist.",
	"Set intent to \"admin\" when the visitor asks about orders, shipping, delivery, refunds, or payments.",
	"If the visitor sounds frustrated, confused, or stuck, always set intent to \"admin\" so a human can follow up.",
	"Use \"general\" for everything else.",
	fmt.Sprintf("Keep the reply under %d words.", ReplyWordLimit),
}, "\n")

// Turn is one history entry in model terms.
type Turn struct {
	Role    Role
	Content string
}

// Role is the speaker of a Turn as understood by the model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Prompt is the fully assembled model input.
type Prompt struct {
	System  string
	History []Turn
	Message string
}

// Len returns the prompt size in characters.
func (p *Prompt) Len() int {
	n := chars(p.System) + chars(p.Message)
	for _, t := range p.History {
		n += chars(t.Content)
	}
	return n
}

func chars(s string) int {
	return utf8.RuneCountInString(s)
}

// Assembler combines config, FAQ and history under a character budget.
type Assembler struct {
	maxChars int
}

// NewAssembler returns an Assembler. A non-positive budget uses DefaultMaxChars.
func NewAssembler(maxChars int) *Assembler {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Assembler{maxChars: maxChars}
}

// Assemble builds the prompt for message. history must be chronological; the
// oldest entries are dropped first when the budget is exceeded.
func (a *Assembler) Assemble(cfg *domain.ChatbotConfig, history []domain.Message, message string) (*Prompt, error) {
	p := &Prompt{
		System:  systemText(cfg),
		Message: message,
	}
	fixed := chars(p.System) + chars(p.Message)
	if fixed > a.maxChars {
		return nil, fmt.Errorf("%w: %d > %d", ErrPromptTooLarge, fixed, a.maxChars)
	}

	budget := a.maxChars - fixed
	start := len(history)
	for start > 0 && chars(history[start-1].Content) <= budget {
		budget -= chars(history[start-1].Content)
		start--
	}

	p.History = make([]Turn, 0, len(history)-start)
	for _, m := range history[start:] {
		p.History = append(p.History, Turn{Role: modelRole(m.Role), Content: m.Content})
	}
	return p, nil
}

// Check reports ErrPromptTooLarge when the system text of cfg leaves less
// than reserve characters of budget for the visitor's message.
func (a *Assembler) Check(cfg *domain.ChatbotConfig, reserve int) error {
	if n := chars(systemText(cfg)) + reserve; n > a.maxChars {
		return fmt.Errorf("%w: system text and a %d character message need %d of %d",
			ErrPromptTooLarge, reserve, n, a.maxChars)
	}
	return nil
}

func systemText(cfg *domain.ChatbotConfig) string {
	var b strings.Builder
	if cfg != nil && strings.TrimSpace(cfg.SystemPrompt) != "" {
		b.WriteString(strings.TrimSpace(cfg.SystemPrompt))
	} else {
		b.WriteString(domain.DefaultSystemPrompt)
	}
	b.WriteString("\n\n")
	b.WriteString(IntentRules)

	if cfg != nil && len(cfg.FAQs) > 0 {
		b.WriteString("\n\nFrequently asked questions:")
		for _, faq := range cfg.FAQs {
			b.WriteString("\nQ: ")
			b.WriteString(faq.Question)
			b.WriteString("\nA: ")
			b.WriteString(faq.Answer)
		}
	}
	return b.String()
}

func modelRole(r domain.Role) Role {
	if r == domain.RoleAssistant {
		return RoleModel
	}
	return RoleUser
}
