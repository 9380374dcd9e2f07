package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

var testTerms = MustTermIndex(domain.DefaultLexicon())

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeCorpus struct {
	matchFn         func(embedding []float32, vectorThreshold float64, count int) ([]domain.Candidate, error)
	matchResult     []domain.Candidate
	matchErr        error
	matchThresholds []float64
	matchCounts     []int

	keywordResult []domain.Candidate
	keywordErr    error
	keywordTexts  []string
	keywordCounts []int

	scanRows  []domain.StoredEmbedding
	scanErr   error
	scanLimit []int
}

func (f *fakeCorpus) MatchDocuments(_ context.Context, embedding []float32, vectorThreshold float64, count int) ([]domain.Candidate, error) {
	f.matchThresholds = append(f.matchThresholds, vectorThreshold)
	f.matchCounts = append(f.matchCounts, count)
	if f.matchFn != nil {
		return f.matchFn(embedding, vectorThreshold, count)
	}
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matchResult, nil
}

func (f *fakeCorpus) SearchKeyword(_ context.Context, text string, count int) ([]domain.Candidate, error) {
	f.keywordTexts = append(f.keywordTexts, text)
	f.keywordCounts = append(f.keywordCounts, count)
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.keywordResult, nil
}

func (f *fakeCorpus) ScanEmbeddings(_ context.Context, maxDocs int) ([]domain.StoredEmbedding, error) {
	f.scanLimit = append(f.scanLimit, maxDocs)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.scanRows, nil
}

// fakeCompleter answers each prompt kind from its own field. It is safe for
// the concurrent calls made by the normalizer.
type fakeCompleter struct {
	mu sync.Mutex

	smallTalk    string
	smallTalkErr error
	spell        string
	spellErr     error
	rewrite      string
	rewriteErr   error
	answer       string
	answerErr    error

	smallTalkCalls int
	spellCalls     int
	rewriteCalls   int
	answerCalls    int
	lastRewrite    []domain.ChatMessage
	lastAnswer     []domain.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, messages []domain.ChatMessage, _ domain.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	system := ""
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		system = messages[0].Content
	}
	switch {
	case strings.Contains(system, "SMALL_TALK or SUBSTANTIVE"):
		f.smallTalkCalls++
		return f.smallTalk, f.smallTalkErr
	case strings.Contains(system, "Correct obvious spelling"):
		f.spellCalls++
		if f.spell == "" && f.spellErr == nil {
			return messages[len(messages)-1].Content, nil
		}
		return f.spell, f.spellErr
	case strings.Contains(system, "standalone search queries"):
		f.rewriteCalls++
		f.lastRewrite = messages
		return f.rewrite, f.rewriteErr
	default:
		f.answerCalls++
		f.lastAnswer = messages
		return f.answer, f.answerErr
	}
}

type mapTextCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *mapTextCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok
}

func (c *mapTextCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
}

type fakeSearch struct {
	result   []domain.ScoredDocument
	err      error
	requests []domain.SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, req domain.SearchRequest) ([]domain.ScoredDocument, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeWebSearcher struct {
	results []domain.WebResult
	err     error
	queries []string
}

func (f *fakeWebSearcher) Search(_ context.Context, query string, _ int) ([]domain.WebResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}
