package domain

// ChatRequest is the body of POST /api/chatbot.
type ChatRequest struct {
	Message    string `json:"message"`
	SessionKey string `json:"sessionKey,omitempty"`
}

// ChatResponse is returned for every processed turn.
type ChatResponse struct {
	Response   string `json:"response"`
	Intent     Intent `json:"intent"`
	Ended      bool   `json:"ended"`
	SessionKey string `json:"sessionKey"`
}

// TestRequest is the body of POST /api/chatbot/test.
type TestRequest struct {
	Message string `json:"message"`
}

// TestResponse carries the raw model output of a test call.
type TestResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// HistoryResponse is returned by GET /api/chatbot/history.
type HistoryResponse struct {
	SessionKey string    `json:"sessionKey"`
	Messages   []Message `json:"messages"`
	Ended      bool      `json:"ended"`
}
