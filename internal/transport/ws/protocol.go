package ws

import "github.com/xiaot623/gogo/gallerybot/internal/domain"

// Frame types from client to server
const (
	TypeChat = "chat"
)

// Frame types from server to client
const (
	TypeReply = "reply"
	TypeError = "error"
)

// ClientFrame is any frame sent by the browser.
type ClientFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ReplyFrame carries the result of one chat turn.
type ReplyFrame struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
	domain.ChatResponse
}

// ErrorFrame reports a failed frame. RetryAfter is set for rate-limited frames.
type ErrorFrame struct {
	Type       string `json:"type"`
	Ts         int64  `json:"ts"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}
