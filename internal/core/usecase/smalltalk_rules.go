package usecase

import (
	"sort"
	"strings"
)

// IsSmallTalk is the deterministic classifier used when the LLM classifier
// is unavailable. A substantive trigger word always wins over a greeting
// pattern, and anything unmatched is substantive.
func (t *TermIndex) IsSmallTalk(text string) bool {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if lower == "" {
		return false
	}
	for _, token := range splitWords(lower) {
		if _, ok := t.substantiveTriggers[token]; ok {
			return false
		}
	}
	for _, re := range t.smallTalk {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func (t *TermIndex) isListNamesQuery(text string) bool {
	for _, token := range splitWords(strings.ToLower(text)) {
		if _, ok := t.listNamesTriggers[token]; ok {
			return true
		}
	}
	return false
}

func (t *TermIndex) isListNamesNoise(lower string) bool {
	_, ok := t.listNamesNoise[lower]
	return ok
}

func (t *TermIndex) acronymList() []string {
	out := make([]string, 0, len(t.acronyms))
	for _, canonical := range t.acronyms {
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}
