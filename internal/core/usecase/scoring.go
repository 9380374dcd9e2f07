package usecase

import (
	"strings"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// Fusion constants. The keyword signal outweighs vector similarity.
const (
	VectorWeight        = 0.4
	KeywordWeight       = 0.6
	TechnicalTermWeight = 3.0
	PlainTermWeight     = 1.0
	RecencyMaxBoost     = 0.05
	RecencyWindowYears  = 10.0
)

type Scores struct {
	Vector  float64
	Keyword float64
	Recency float64
	Fused   float64
}

// HybridScorer fuses vector similarity, keyword overlap and recency into one
// relevance score. It holds no mutable state.
type HybridScorer struct {
	terms *TermIndex
}

func NewHybridScorer(terms *TermIndex) *HybridScorer {
	return &HybridScorer{terms: terms}
}

func (s *HybridScorer) Score(doc domain.Document, keywords []string, vectorScore float64, currentYear int) Scores {
	keywordScore := s.KeywordScore(doc, keywords)
	recency := RecencyBoost(doc.Year, currentYear)
	return Scores{
		Vector:  vectorScore,
		Keyword: keywordScore,
		Recency: recency,
		Fused:   vectorScore*VectorWeight + keywordScore*KeywordWeight + recency,
	}
}

// KeywordScore is the weighted fraction of keywords found as a
// case-insensitive substring of title, content, category and author.
func (s *HybridScorer) KeywordScore(doc domain.Document, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(doc.Title + " " + doc.Content + " " + doc.Category + " " + doc.Author)

	var total, found float64
	for _, keyword := range keywords {
		weight := PlainTermWeight
		if s.terms.isTechnical(keyword) {
			weight = TechnicalTermWeight
		}
		total += weight
		if strings.Contains(haystack, strings.ToLower(keyword)) {
			found += weight
		}
	}
	if total == 0 {
		return 0
	}
	return found / total
}

// RecencyBoost decays linearly from RecencyMaxBoost for a current-year
// document to zero at RecencyWindowYears of age. Unknown years get nothing.
func RecencyBoost(docYear, currentYear int) float64 {
	if docYear <= 0 {
		return 0
	}
	freshness := 1 - float64(currentYear-docYear)/RecencyWindowYears
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 1 {
		freshness = 1
	}
	return freshness * RecencyMaxBoost
}
