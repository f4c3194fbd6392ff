package domain

import "time"

// Session is a conversation log keyed by a session key.
type Session struct {
	Key       string    `json:"sessionKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single chat message within a session.
type Message struct {
	MessageID  string    `json:"messageId"`
	SessionKey string    `json:"sessionKey"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Intent     Intent    `json:"intent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
