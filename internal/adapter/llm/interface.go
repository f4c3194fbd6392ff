// Package llm provides an abstraction for generative model clients.
package llm

import "context"

// Message roles understood by every client.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one prior turn sent as context.
type Message struct {
	Role    string
	Content string
}

// GenerateRequest is a single non-streaming generation call.
type GenerateRequest struct {
	Model       string
	System      string
	History     []Message
	Message     string
	Temperature float64
}

// Client defines the interface for model gateway operations.
type Client interface {
	// Generate returns the raw model text for req.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

var _ Client = (*GeminiClient)(nil)
