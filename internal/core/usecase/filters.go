package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// maxGenericPrefixWords is the longest site-suffixed title prefix that is
// still treated as a navigation page.
const maxGenericPrefixWords = 2

// IsGenericPage reports whether title belongs to an institutional landing or
// navigation page rather than a research artifact.
func (t *TermIndex) IsGenericPage(title string) bool {
	lower := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if lower == "" {
		return false
	}
	if _, ok := t.genericTitles[lower]; ok {
		return true
	}
	for _, re := range t.genericPatterns {
		if re.MatchString(lower) {
			return true
		}
	}

	for _, suffix := range t.siteSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		prefix := strings.TrimSpace(strings.TrimSuffix(lower, suffix))
		if len(strings.Fields(prefix)) <= maxGenericPrefixWords {
			return true
		}
		return !t.hasResearchIndicator(prefix)
	}
	return false
}

func (t *TermIndex) hasResearchIndicator(lower string) bool {
	for _, indicator := range t.researchIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func filterGenericPages(terms *TermIndex, docs []domain.ScoredDocument) []domain.ScoredDocument {
	out := docs[:0:0]
	for _, doc := range docs {
		if terms.IsGenericPage(doc.Title) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// filterContentRelevant drops documents in which no keyword literally occurs
// in title or content. Without keywords nothing is dropped.
func filterContentRelevant(docs []domain.ScoredDocument, keywords []string) []domain.ScoredDocument {
	if len(keywords) == 0 {
		return docs
	}
	lowered := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		lowered = append(lowered, strings.ToLower(keyword))
	}

	out := docs[:0:0]
	for _, doc := range docs {
		text := strings.ToLower(doc.Title + " " + doc.Content)
		for _, keyword := range lowered {
			if strings.Contains(text, keyword) {
				out = append(out, doc)
				break
			}
		}
	}
	return out
}

// dedupeByTitle keeps the highest-scored document per exact title and
// returns the survivors sorted by descending similarity. Untitled documents
// are keyed by id.
func dedupeByTitle(docs []domain.ScoredDocument) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, 0, len(docs))
	position := make(map[string]int, len(docs))
	for _, doc := range docs {
		key := dedupeKey(doc.Document)
		if i, ok := position[key]; ok {
			if doc.Similarity > out[i].Similarity {
				out[i] = doc
			}
			continue
		}
		position[key] = len(out)
		out = append(out, doc)
	}
	sortBySimilarity(out)
	return out
}

func dedupeKey(doc domain.Document) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return "id:" + doc.ID
	}
	return "title:" + title
}

func sortBySimilarity(docs []domain.ScoredDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Similarity != docs[j].Similarity {
			return docs[i].Similarity > docs[j].Similarity
		}
		return docs[i].ID < docs[j].ID
	})
}
