package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MockClient is an offline Client that answers with a well-formed JSON reply.
type MockClient struct{}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ Client = (*MockClient)(nil)

var (
	artistKeywords = []string{"commission", "artist", "custom piece", "portfolio", "paint me"}
	adminKeywords  = []string{"order", "shipping", "delivery", "refund", "payment", "paypal", "invoice"}
	stuckKeywords  = []string{"frustrated", "stuck", "not working", "annoyed", "help me"}
)

// Generate returns a mock reply whose intent follows simple keyword rules.
func (m *MockClient) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	intent := mockIntent(req.Message)
	body, err := json.Marshal(map[string]string{
		"reply":  fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(req.Message, 100)),
		"intent": intent,
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func mockIntent(message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, stuckKeywords), containsAny(lower, adminKeywords):
		return "admin"
	case containsAny(lower, artistKeywords):
		return "artist"
	default:
		return "general"
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
