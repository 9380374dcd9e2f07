package domain

import "time"

type ChatRequest struct {
	Message  string
	History  []ChatMessage
	Limit    int
	AllowWeb bool
}

type ChatAnswer struct {
	Text         string           `json:"text"`
	Query        Query            `json:"query"`
	Sources      []ScoredDocument `json:"sources"`
	ContextCount int              `json:"context_count"`
	WebResults   []WebResult      `json:"web_results,omitempty"`
}

type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Feedback is a user rating of one answer.
type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
