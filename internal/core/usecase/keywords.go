package usecase

import (
	"strings"
	"unicode/utf8"
)

const minKeywordLength = 3

// KeywordExtractor maps free text to the significant terms used for
// lexical scoring and the keyword fallback.
type KeywordExtractor struct {
	terms *TermIndex
}

func NewKeywordExtractor(terms *TermIndex) *KeywordExtractor {
	return &KeywordExtractor{terms: terms}
}

// Extract returns the distinct keywords of text in first-seen order.
// Acronyms keep their uppercase form and bypass the stopword and length
// checks; everything else is lowercased.
func (e *KeywordExtractor) Extract(text string) []string {
	tokens := splitWords(text)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if e.terms.isIgnored(lower) {
			continue
		}

		keyword, isAcronym := e.terms.canonicalAcronym(token)
		if !isAcronym {
			if utf8.RuneCountInString(lower) < minKeywordLength || e.terms.isStopword(lower) {
				continue
			}
			keyword = lower
		}

		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}
