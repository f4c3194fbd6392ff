package domain

// QuestionCount is a normalized user question and how often it was asked.
type QuestionCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

// Analytics aggregates chatbot usage across all stored sessions.
type Analytics struct {
	TotalSessions int             `json:"totalSessions"`
	Intents       map[Intent]int  `json:"intents"`
	TopQuestions  []QuestionCount `json:"topQuestions"`
}
