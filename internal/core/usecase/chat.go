package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

const (
	contextDocMaxRunes = 1500
	smallTalkFallback  = "Hello! Ask me about research at KTH and I will look it up for you."
)

// ChatUseCase answers one user turn: query understanding, retrieval, source
// selection, optional web fallback and generation.
type ChatUseCase struct {
	normalizer ports.QueryNormalizer
	search     ports.SearchService
	generator  ports.ChatCompleter
	web        ports.WebSearcher
	limits     domain.ChatLimits
	logger     *slog.Logger
}

// NewChatUseCase builds the orchestrator. web may be nil when web search is
// not configured.
func NewChatUseCase(
	normalizer ports.QueryNormalizer,
	search ports.SearchService,
	generator ports.ChatCompleter,
	web ports.WebSearcher,
	limits domain.ChatLimits,
	logger *slog.Logger,
) *ChatUseCase {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 5
	}
	if limits.ContextThreshold <= 0 {
		limits.ContextThreshold = 0.45
	}
	if limits.DisplayThreshold <= 0 {
		limits.DisplayThreshold = 0.55
	}
	if limits.DisplayFallbackCount <= 0 {
		limits.DisplayFallbackCount = 3
	}
	if limits.WebSearchLimit <= 0 {
		limits.WebSearchLimit = 5
	}
	if limits.GenerateTimeout <= 0 {
		limits.GenerateTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{
		normalizer: normalizer,
		search:     search,
		generator:  generator,
		web:        web,
		limits:     limits,
		logger:     logger,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	q, err := uc.normalizer.Normalize(ctx, req.Message, req.History)
	if err != nil {
		return nil, fmt.Errorf("normalize query: %w", err)
	}

	answer := &domain.ChatAnswer{
		Query:   q,
		Sources: []domain.ScoredDocument{},
	}
	if q.IsSmallTalk {
		answer.Text = uc.smallTalkReply(ctx, req)
		return answer, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = uc.limits.DefaultLimit
	}
	docs, err := uc.search.Search(ctx, domain.SearchRequest{
		Query:     q.SearchText,
		Limit:     limit,
		Threshold: uc.limits.ContextThreshold,
		RawQuery:  q.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	answer.ContextCount = len(docs)
	answer.Sources = SelectDisplaySources(docs, uc.limits.DisplayThreshold, uc.limits.DisplayFallbackCount, uc.limits.ContextThreshold)

	if len(docs) == 0 && req.AllowWeb && uc.web != nil && !q.IsKTHSpecific {
		results, err := uc.web.Search(ctx, q.SearchText, uc.limits.WebSearchLimit)
		if err != nil {
			uc.logger.WarnContext(ctx, "web search fallback failed", "error", err)
		} else {
			answer.WebResults = results
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()
	text, err := uc.generator.Complete(genCtx, buildAnswerMessages(req, docs, answer.WebResults), domain.CompletionOptions{Temperature: 0.3})
	if err != nil || strings.TrimSpace(text) == "" {
		uc.logger.WarnContext(ctx, "answer generation failed, using fallback", "error", err)
		text = fallbackAnswer(docs, answer.WebResults)
	}
	answer.Text = strings.TrimSpace(text)
	return answer, nil
}

func (uc *ChatUseCase) smallTalkReply(ctx context.Context, req domain.ChatRequest) string {
	ctx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()

	messages := []domain.ChatMessage{{
		Role:    domain.RoleSystem,
		Content: "You are a friendly research assistant for KTH Royal Institute of Technology. Reply briefly and warmly to the greeting, thanks or goodbye.",
	}}
	messages = append(messages, lastTurns(cleanHistory(req.History), 4)...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: req.Message})

	text, err := uc.generator.Complete(ctx, messages, domain.CompletionOptions{Temperature: 0.7, MaxTokens: 120})
	if err != nil || strings.TrimSpace(text) == "" {
		return smallTalkFallback
	}
	return strings.TrimSpace(text)
}

func buildAnswerMessages(req domain.ChatRequest, docs []domain.ScoredDocument, web []domain.WebResult) []domain.ChatMessage {
	var b strings.Builder
	for i, doc := range docs {
		content := doc.Content
		if utf8.RuneCountInString(content) > contextDocMaxRunes {
			content = string([]rune(content)[:contextDocMaxRunes]) + "..."
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, doc.Title)
		if doc.Author != "" {
			fmt.Fprintf(&b, " (%s)", doc.Author)
		}
		if doc.Year > 0 {
			fmt.Fprintf(&b, " %d", doc.Year)
		}
		if doc.URL != "" {
			fmt.Fprintf(&b, " %s", doc.URL)
		}
		fmt.Fprintf(&b, "\n%s\n\n", content)
	}
	for i, result := range web {
		fmt.Fprintf(&b, "[W%d] %s %s\n%s\n\n", i+1, result.Title, result.URL, result.Snippet)
	}

	contextText := b.String()
	if contextText == "" {
		contextText = "No documents were found for this question."
	}
	system := fmt.Sprintf(`You are a research assistant for KTH Royal Institute of Technology.
Answer using only the context below and cite sources by their bracket number.
If the context does not answer the question, say honestly that nothing relevant was found.

Context:
%s`, contextText)

	messages := []domain.ChatMessage{{Role: domain.RoleSystem, Content: system}}
	messages = append(messages, lastTurns(cleanHistory(req.History), 6)...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: req.Message})
	return messages
}

func fallbackAnswer(docs []domain.ScoredDocument, web []domain.WebResult) string {
	if len(docs) == 0 && len(web) == 0 {
		return "I could not find any KTH research documents matching your question."
	}
	var b strings.Builder
	b.WriteString("I found these sources but could not write a summary right now:\n")
	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s", doc.Title)
		if doc.URL != "" {
			fmt.Fprintf(&b, " (%s)", doc.URL)
		}
		b.WriteString("\n")
	}
	for _, result := range web {
		fmt.Fprintf(&b, "- %s (%s)\n", result.Title, result.URL)
	}
	return b.String()
}
