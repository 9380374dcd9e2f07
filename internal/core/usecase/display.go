package usecase

import "github.com/kirillkom/kth-research-assistant/internal/core/domain"

// SelectDisplaySources returns the documents shown to the user as sources:
// everything at or above displayThreshold. When that is empty but docs is
// not, the best fallbackCount documents at or above fallbackFloor are shown
// instead. docs must be sorted by descending similarity.
func SelectDisplaySources(
	docs []domain.ScoredDocument,
	displayThreshold float64,
	fallbackCount int,
	fallbackFloor float64,
) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Similarity >= displayThreshold {
			out = append(out, doc)
		}
	}
	if len(out) > 0 || len(docs) == 0 {
		return out
	}

	for _, doc := range docs {
		if len(out) >= fallbackCount {
			break
		}
		if doc.Similarity >= fallbackFloor {
			out = append(out, doc)
		}
	}
	return out
}
