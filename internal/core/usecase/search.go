package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

const (
	// The vector lookup runs at a looser threshold than the final cut and
	// over-fetches, so the hybrid scorer has room to re-rank.
	vectorThresholdSlack = 0.35
	minVectorThreshold   = 0.10
	overFetchFactor      = 20

	// BM25 fallback scores are mapped into the range hybrid scores live in.
	keywordFallbackFloor       = 0.5
	keywordFallbackCeiling     = 0.9
	keywordFallbackFetchFactor = 2
)

// VectorLookupThreshold derives the loosened vector lookup threshold from
// the caller's final fused-score threshold.
func VectorLookupThreshold(finalThreshold float64) float64 {
	return math.Max(finalThreshold-vectorThresholdSlack, minVectorThreshold)
}

type SearchOption func(*SearchUseCase)

// SearchObserver is told which retrieval branch answered each search.
type SearchObserver func(path domain.RetrievalPath, results int)

func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(uc *SearchUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithSearchClock(now func() time.Time) SearchOption {
	return func(uc *SearchUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func WithSearchObserver(observer SearchObserver) SearchOption {
	return func(uc *SearchUseCase) {
		uc.observe = observer
	}
}

// SearchUseCase is the hybrid ranking pipeline: vector candidates, hybrid
// re-rank, relevance/dedup/generic-page filtering and a BM25 fallback.
type SearchUseCase struct {
	corpus   ports.CorpusStore
	embedder ports.Embedder
	terms    *TermIndex
	keywords *KeywordExtractor
	scorer   *HybridScorer
	limits   domain.SearchLimits
	logger   *slog.Logger
	now      func() time.Time
	observe  SearchObserver
}

func NewSearchUseCase(
	corpus ports.CorpusStore,
	embedder ports.Embedder,
	terms *TermIndex,
	limits domain.SearchLimits,
	opts ...SearchOption,
) *SearchUseCase {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 5
	}
	if limits.MaxLimit <= 0 {
		limits.MaxLimit = 50
	}
	if limits.ScanMaxDocs <= 0 {
		limits.ScanMaxDocs = 2000
	}

	uc := &SearchUseCase{
		corpus:   corpus,
		embedder: embedder,
		terms:    terms,
		keywords: NewKeywordExtractor(terms),
		scorer:   NewHybridScorer(terms),
		limits:   limits,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Search returns at most limit documents sorted by descending fused score.
// Provider and lookup failures degrade to fewer results; only a blank query,
// an invalid threshold or an embedding dimension mismatch return an error.
func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) ([]domain.ScoredDocument, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	finalThreshold := req.Threshold
	if math.IsNaN(finalThreshold) || finalThreshold < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("threshold must be non-negative, got %v", finalThreshold))
	}
	limit := uc.resolveLimit(req.Limit)

	keywords := uc.keywords.Extract(query)
	if len(keywords) == 0 && strings.TrimSpace(req.RawQuery) != "" {
		keywords = uc.keywords.Extract(req.RawQuery)
	}

	vectorThreshold := VectorLookupThreshold(finalThreshold)
	candidates, path, err := uc.fetchCandidates(ctx, query, vectorThreshold, limit*overFetchFactor)
	if err != nil {
		return nil, err
	}

	ranked := uc.rank(candidates, keywords, finalThreshold)
	if len(ranked) > 0 {
		uc.logger.DebugContext(ctx, "search ranked",
			"path", path,
			"candidates", len(candidates),
			"results", len(ranked),
			"vector_threshold", vectorThreshold,
			"final_threshold", finalThreshold,
		)
		ranked = truncateDocuments(ranked, limit)
		uc.report(path, len(ranked))
		return ranked, nil
	}

	results := uc.keywordFallback(ctx, query, keywords, limit)
	uc.logger.DebugContext(ctx, "search fell back to keyword lookup",
		"vector_path", path,
		"candidates", len(candidates),
		"results", len(results),
	)
	if len(results) > 0 {
		uc.report(domain.PathKeywordBM25, len(results))
	} else {
		uc.report(domain.PathNoCandidates, 0)
	}
	return results, nil
}

func (uc *SearchUseCase) report(path domain.RetrievalPath, results int) {
	if uc.observe != nil {
		uc.observe(path, results)
	}
}

// Keywords exposes the extractor used by the pipeline.
func (uc *SearchUseCase) Keywords(text string) []string {
	return uc.keywords.Extract(text)
}

func (uc *SearchUseCase) resolveLimit(limit int) int {
	if limit <= 0 {
		return uc.limits.DefaultLimit
	}
	if limit > uc.limits.MaxLimit {
		return uc.limits.MaxLimit
	}
	return limit
}

func (uc *SearchUseCase) fetchCandidates(
	ctx context.Context,
	query string,
	vectorThreshold float64,
	count int,
) ([]domain.Candidate, domain.RetrievalPath, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err == nil && len(vector) == 0 {
		err = errors.New("empty embedding")
	}
	if err != nil {
		uc.logger.WarnContext(ctx, "query embedding failed, skipping vector search", "error", err)
		return nil, domain.PathNoCandidates, nil
	}
	if dims := uc.limits.EmbeddingDimensions; dims > 0 && len(vector) != dims {
		return nil, domain.PathNoCandidates, domain.WrapError(
			domain.ErrDimensionMismatch,
			"embed query",
			fmt.Errorf("query vector has %d dimensions, corpus expects %d", len(vector), dims),
		)
	}

	candidates, err := uc.corpus.MatchDocuments(ctx, vector, vectorThreshold, count)
	switch {
	case err == nil:
		return candidates, domain.PathVectorRPC, nil
	case errors.Is(err, domain.ErrDimensionMismatch):
		return nil, domain.PathNoCandidates, err
	case errors.Is(err, domain.ErrProcedureMissing):
		uc.logger.WarnContext(ctx, "vector lookup procedure missing, scanning corpus", "error", err)
	default:
		uc.logger.WarnContext(ctx, "vector lookup failed, skipping vector search", "error", err)
		return nil, domain.PathNoCandidates, nil
	}

	candidates, err = uc.scanCandidates(ctx, vector, vectorThreshold, count)
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, domain.PathNoCandidates, err
		}
		uc.logger.WarnContext(ctx, "corpus scan failed, skipping vector search", "error", err)
		return nil, domain.PathNoCandidates, nil
	}
	return candidates, domain.PathVectorScan, nil
}

// rank scores every candidate, cuts at the caller's threshold and applies
// the relevance, dedup and generic-page filters in that order.
func (uc *SearchUseCase) rank(candidates []domain.Candidate, keywords []string, finalThreshold float64) []domain.ScoredDocument {
	currentYear := uc.now().Year()
	scored := make([]domain.ScoredDocument, 0, len(candidates))
	for _, candidate := range candidates {
		scores := uc.scorer.Score(candidate.Document, keywords, candidate.Similarity, currentYear)
		if scores.Fused < finalThreshold {
			continue
		}
		scored = append(scored, domain.ScoredDocument{
			Document:     candidate.Document,
			VectorScore:  scores.Vector,
			KeywordScore: scores.Keyword,
			Similarity:   scores.Fused,
		})
	}
	sortBySimilarity(scored)

	scored = filterContentRelevant(scored, keywords)
	scored = dedupeByTitle(scored)
	return filterGenericPages(uc.terms, scored)
}

// keywordFallback runs the BM25 lookup on the keyword string. A missing or
// failing procedure yields no results.
func (uc *SearchUseCase) keywordFallback(ctx context.Context, query string, keywords []string, limit int) []domain.ScoredDocument {
	text := strings.Join(keywords, " ")
	if text == "" {
		text = query
	}

	hits, err := uc.corpus.SearchKeyword(ctx, text, limit*keywordFallbackFetchFactor)
	if err != nil {
		if errors.Is(err, domain.ErrProcedureMissing) {
			uc.logger.WarnContext(ctx, "keyword search procedure missing, no fallback available", "error", err)
		} else {
			uc.logger.WarnContext(ctx, "keyword search failed", "error", err)
		}
		return []domain.ScoredDocument{}
	}

	docs := dedupeByTitle(normalizeKeywordHits(hits))
	return truncateDocuments(docs, limit)
}

// normalizeKeywordHits maps raw BM25 scores linearly into
// [keywordFallbackFloor, keywordFallbackCeiling] against the batch maximum.
func normalizeKeywordHits(hits []domain.Candidate) []domain.ScoredDocument {
	maxRaw := 0.0
	for _, hit := range hits {
		if hit.Similarity > maxRaw {
			maxRaw = hit.Similarity
		}
	}

	out := make([]domain.ScoredDocument, 0, len(hits))
	for _, hit := range hits {
		ratio := 1.0
		if maxRaw > 0 {
			ratio = math.Max(hit.Similarity, 0) / maxRaw
		}
		out = append(out, domain.ScoredDocument{
			Document:     hit.Document,
			KeywordScore: ratio,
			Similarity:   keywordFallbackFloor + ratio*(keywordFallbackCeiling-keywordFallbackFloor),
		})
	}
	return out
}

func truncateDocuments(docs []domain.ScoredDocument, limit int) []domain.ScoredDocument {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}
