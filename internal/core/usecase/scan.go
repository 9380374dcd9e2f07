package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// scanCandidates recomputes cosine similarity over a bounded corpus scan.
// It mirrors the vector lookup procedure: similarity at or above
// vectorThreshold, best first, at most count rows. Rows whose stored
// embedding cannot be decoded or has another length than the query are
// skipped. ErrDimensionMismatch is returned only when no decodable row
// matches the query dimension.
func (uc *SearchUseCase) scanCandidates(
	ctx context.Context,
	queryVector []float32,
	vectorThreshold float64,
	count int,
) ([]domain.Candidate, error) {
	rows, err := uc.corpus.ScanEmbeddings(ctx, uc.limits.ScanMaxDocs)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	skipped, mismatched, sameDimension := 0, 0, 0
	var firstMismatch string
	for _, row := range rows {
		vector, err := decodeEmbedding(row.Embedding)
		if err != nil {
			skipped++
			uc.logger.WarnContext(ctx, "skipping malformed stored embedding", "document_id", row.ID, "error", err)
			continue
		}
		if len(vector) != len(queryVector) {
			if mismatched == 0 {
				firstMismatch = fmt.Sprintf("document %s has %d dimensions, query has %d", row.ID, len(vector), len(queryVector))
			}
			mismatched++
			uc.logger.WarnContext(ctx, "skipping stored embedding with wrong dimension",
				"document_id", row.ID,
				"dimensions", len(vector),
				"query_dimensions", len(queryVector),
			)
			continue
		}
		sameDimension++

		similarity := cosineSimilarity(queryVector, vector)
		if similarity < vectorThreshold {
			continue
		}
		candidates = append(candidates, domain.Candidate{Document: row.Document, Similarity: similarity})
	}

	if sameDimension == 0 && mismatched > 0 {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "scan embeddings", errors.New(firstMismatch))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})
	if count > 0 && len(candidates) > count {
		candidates = candidates[:count]
	}

	uc.logger.DebugContext(ctx, "corpus scan finished",
		"rows", len(rows),
		"skipped", skipped,
		"wrong_dimension", mismatched,
		"candidates", len(candidates),
	)
	return candidates, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// decodeEmbedding parses a stored vector such as "[0.1,0.2,0.3]".
func decodeEmbedding(raw string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("decode embedding: empty vector")
	}
	return vector, nil
}
