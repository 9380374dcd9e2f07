package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// acronymPattern matches tokens written as an acronym even when they are not
// on the allowlist.
var acronymPattern = regexp.MustCompile(`^[A-Z]{2,6}$`)

// TermIndex is the compiled, lookup-friendly form of a domain.Lexicon. It is
// built once at startup and shared read-only across requests.
type TermIndex struct {
	acronyms            map[string]string
	technical           map[string]struct{}
	stopwords           map[string]struct{}
	ignored             map[string]struct{}
	genericTitles       map[string]struct{}
	genericPatterns     []*regexp.Regexp
	siteSuffixes        []string
	researchIndicators  []string
	smallTalk           []*regexp.Regexp
	substantiveTriggers map[string]struct{}
	listNamesTriggers   map[string]struct{}
	listNamesNoise      map[string]struct{}
	kthMarkers          []string
}

func NewTermIndex(lex domain.Lexicon) (*TermIndex, error) {
	idx := &TermIndex{
		acronyms:            make(map[string]string, len(lex.Acronyms)),
		technical:           toLowerSet(lex.TechnicalTerms),
		stopwords:           toLowerSet(lex.Stopwords),
		ignored:             toLowerSet(lex.IgnoredTerms),
		genericTitles:       toLowerSet(lex.GenericTitles),
		siteSuffixes:        toLowerList(lex.SiteSuffixes),
		researchIndicators:  toLowerList(lex.ResearchIndicators),
		substantiveTriggers: toLowerSet(lex.SubstantiveTriggers),
		listNamesTriggers:   toLowerSet(lex.ListNamesTriggers),
		listNamesNoise:      toLowerSet(lex.ListNamesNoise),
		kthMarkers:          toLowerList(lex.KTHMarkers),
	}
	for _, acronym := range lex.Acronyms {
		acronym = strings.TrimSpace(acronym)
		if acronym == "" {
			continue
		}
		idx.acronyms[strings.ToLower(acronym)] = strings.ToUpper(acronym)
	}

	var err error
	if idx.genericPatterns, err = compilePatterns(lex.GenericPatterns); err != nil {
		return nil, fmt.Errorf("compile generic page patterns: %w", err)
	}
	if idx.smallTalk, err = compilePatterns(lex.SmallTalkPatterns); err != nil {
		return nil, fmt.Errorf("compile small talk patterns: %w", err)
	}
	return idx, nil
}

// MustTermIndex is NewTermIndex for lexicons known to be valid, such as
// domain.DefaultLexicon.
func MustTermIndex(lex domain.Lexicon) *TermIndex {
	idx, err := NewTermIndex(lex)
	if err != nil {
		panic(err)
	}
	return idx
}

// canonicalAcronym reports whether token is an acronym and returns its
// uppercase form. Allowlisted acronyms always win over stopwords; a token
// that only looks like one ("WHAT", "IS" in shouted text) does not.
func (t *TermIndex) canonicalAcronym(token string) (string, bool) {
	lower := strings.ToLower(token)
	if canonical, ok := t.acronyms[lower]; ok {
		return canonical, true
	}
	if acronymPattern.MatchString(token) && !t.isStopword(lower) {
		return token, true
	}
	return "", false
}

func (t *TermIndex) isTechnical(term string) bool {
	_, ok := t.technical[strings.ToLower(term)]
	return ok
}

func (t *TermIndex) isStopword(lower string) bool {
	_, ok := t.stopwords[lower]
	return ok
}

func (t *TermIndex) isIgnored(lower string) bool {
	_, ok := t.ignored[lower]
	return ok
}

// acronymsIn lists the acronyms of text that rewriting and spelling
// correction must carry over unchanged.
func (t *TermIndex) acronymsIn(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, token := range splitWords(text) {
		if t.isIgnored(strings.ToLower(token)) {
			continue
		}
		canonical, ok := t.canonicalAcronym(token)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func (t *TermIndex) mentionsKTH(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range t.kthMarkers {
		if strings.Contains(marker, " ") {
			if strings.Contains(lower, marker) {
				return true
			}
			continue
		}
		for _, token := range splitWords(lower) {
			if token == marker {
				return true
			}
		}
	}
	return false
}

// splitWords tokenizes on non-word characters, keeping letters, digits and
// underscores. Case is preserved.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

func toLowerSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}

func toLowerList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		out = append(out, re)
	}
	return out, nil
}
