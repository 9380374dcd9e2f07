package ports

import (
	"context"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// SearchService is the ranking pipeline exposed to chat and voice
// orchestrators.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.ScoredDocument, error)
}

// QueryNormalizer turns raw user text into a search query and flags.
type QueryNormalizer interface {
	Normalize(ctx context.Context, raw string, history []domain.ChatMessage) (domain.Query, error)
}

// ChatService answers a user turn with retrieved sources.
type ChatService interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error)
}

// FeedbackService accepts feedback from the API.
type FeedbackService interface {
	SubmitFeedback(ctx context.Context, feedback domain.Feedback) (*domain.Feedback, error)
}

// FeedbackRecorder persists feedback consumed by the worker.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, feedback domain.Feedback) error
}
