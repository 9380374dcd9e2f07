package ports

import (
	"context"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// Embedder converts query text to a vector in the same space as the
// stored corpus embeddings.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatCompleter is a single-turn chat completion: messages in, text out.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error)
}

// CorpusStore is read-only access to the embedded document corpus.
// MatchDocuments and SearchKeyword return domain.ErrProcedureMissing when
// the backing procedure has not been provisioned.
type CorpusStore interface {
	MatchDocuments(ctx context.Context, embedding []float32, vectorThreshold float64, count int) ([]domain.Candidate, error)
	SearchKeyword(ctx context.Context, text string, count int) ([]domain.Candidate, error)
	ScanEmbeddings(ctx context.Context, maxDocs int) ([]domain.StoredEmbedding, error)
}

// TextCache maps normalized text to a previously computed string.
type TextCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// WebSearcher queries the open web. Implementations bound their own latency.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error)
}

// FeedbackPublisher hands a feedback event to asynchronous processing.
type FeedbackPublisher interface {
	PublishFeedback(ctx context.Context, feedback domain.Feedback) error
}

// FeedbackSubscriber delivers feedback events to a handler.
type FeedbackSubscriber interface {
	SubscribeFeedback(ctx context.Context, handler func(context.Context, domain.Feedback) error) error
}

// FeedbackRepository persists feedback.
type FeedbackRepository interface {
	SaveFeedback(ctx context.Context, feedback domain.Feedback) error
}
