package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

const (
	smallTalkLabel       = "SMALL_TALK"
	substantiveLabel     = "SUBSTANTIVE"
	keepOriginalSentinel = "KEEP_ORIGINAL"

	spellMinChars = 3
	spellMaxWords = 12

	// Only messages shorter than rewriteMaxWords are candidates for rewriting.
	rewriteMaxWords       = 15
	rewriteMaxOutputWords = 12
	historyTurnMaxRunes   = 400

	topicTermMinRunes = 7
)

var (
	modelLabelPrefix = regexp.MustCompile(`(?i)^(rewritten query|rewritten|search query|query|corrected text|corrected)\s*:\s*`)
	camelCaseToken   = regexp.MustCompile(`[a-z][A-Z]`)
)

type rewriteOutcome int

const (
	rewriteSkipped rewriteOutcome = iota
	rewriteKept
	rewriteApplied
	rewriteFailed
)

type rewriteResult struct {
	outcome rewriteOutcome
	text    string
}

// QueryNormalizer runs the LLM-assisted query understanding steps. Every
// step has a deterministic fallback, so Normalize only fails on empty input.
type QueryNormalizer struct {
	completer  ports.ChatCompleter
	terms      *TermIndex
	keywords   *KeywordExtractor
	spellCache ports.TextCache
	limits     domain.NormalizerLimits
	logger     *slog.Logger
}

func NewQueryNormalizer(
	completer ports.ChatCompleter,
	terms *TermIndex,
	spellCache ports.TextCache,
	limits domain.NormalizerLimits,
	logger *slog.Logger,
) *QueryNormalizer {
	if limits.ClassifyTimeout <= 0 {
		limits.ClassifyTimeout = 4 * time.Second
	}
	if limits.SpellTimeout <= 0 {
		limits.SpellTimeout = 4 * time.Second
	}
	if limits.RewriteTimeout <= 0 {
		limits.RewriteTimeout = 6 * time.Second
	}
	if limits.HistoryTurns <= 0 {
		limits.HistoryTurns = 6
	}
	if spellCache == nil {
		spellCache = noopTextCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryNormalizer{
		completer:  completer,
		terms:      terms,
		keywords:   NewKeywordExtractor(terms),
		spellCache: spellCache,
		limits:     limits,
		logger:     logger,
	}
}

// Normalize classifies the message and produces the text to search for.
// Small-talk classification, spelling correction and the vague-query
// rewrite are independent calls and run concurrently; all of them finish
// before Normalize returns.
func (n *QueryNormalizer) Normalize(ctx context.Context, raw string, history []domain.ChatMessage) (domain.Query, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "normalize query", errors.New("message is required"))
	}
	history = cleanHistory(history)

	var (
		isSmallTalk bool
		corrected   string
		rewrite     rewriteResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		isSmallTalk = n.classifySmallTalk(gctx, text, history)
		return nil
	})
	g.Go(func() error {
		corrected = n.correctSpelling(gctx, text)
		return nil
	})
	g.Go(func() error {
		rewrite = n.rewriteVague(gctx, text, history)
		return nil
	})
	_ = g.Wait()

	q := domain.Query{
		Raw:         text,
		Corrected:   corrected,
		SearchText:  corrected,
		IsSmallTalk: isSmallTalk,
	}
	switch rewrite.outcome {
	case rewriteApplied:
		q.SearchText = rewrite.text
		q.Rewritten = true
	case rewriteFailed:
		q.SearchText = text
	}

	q.IsListNamesQuery = n.terms.isListNamesQuery(q.SearchText) || n.terms.isListNamesQuery(text)
	if q.Rewritten && n.terms.isListNamesQuery(q.SearchText) {
		if topic := n.extractTopicTerms(q.SearchText); topic != "" {
			q.SearchText = topic
		}
	}

	q.IsKTHSpecific = n.terms.mentionsKTH(text) || n.terms.mentionsKTH(q.SearchText)
	if !q.IsKTHSpecific && q.Rewritten {
		for _, turn := range lastTurns(history, n.limits.HistoryTurns) {
			if n.terms.mentionsKTH(turn.Content) {
				q.IsKTHSpecific = true
				break
			}
		}
	}
	q.Keywords = n.keywords.Extract(q.SearchText)
	return q, nil
}

func (n *QueryNormalizer) classifySmallTalk(ctx context.Context, text string, history []domain.ChatMessage) bool {
	ctx, cancel := context.WithTimeout(ctx, n.limits.ClassifyTimeout)
	defer cancel()

	answer, err := n.completer.Complete(ctx, buildSmallTalkMessages(text, len(history) > 0), domain.ClassifierOptions)
	if err != nil {
		n.logger.WarnContext(ctx, "small talk classification failed, using rules", "error", err)
		return n.terms.IsSmallTalk(text)
	}

	label := strings.ToUpper(strings.TrimSpace(answer))
	switch {
	case strings.Contains(label, substantiveLabel):
		return false
	case strings.Contains(label, smallTalkLabel):
		return true
	default:
		n.logger.WarnContext(ctx, "small talk classification unrecognized, using rules", "answer", answer)
		return n.terms.IsSmallTalk(text)
	}
}

// correctSpelling returns text unchanged when it is too short, too long, or
// when the correction call fails or looks unsafe.
func (n *QueryNormalizer) correctSpelling(ctx context.Context, text string) string {
	if utf8.RuneCountInString(text) < spellMinChars || len(strings.Fields(text)) > spellMaxWords {
		return text
	}
	if cached, ok := n.spellCache.Get(text); ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, n.limits.SpellTimeout)
	defer cancel()

	answer, err := n.completer.Complete(ctx, buildSpellMessages(text, n.terms.acronymList()), domain.CompletionOptions{Temperature: 0, MaxTokens: 128})
	if err != nil {
		n.logger.WarnContext(ctx, "spelling correction failed, keeping input", "error", err)
		return text
	}

	corrected := sanitizeModelText(answer)
	if !n.acceptCorrection(text, corrected) {
		n.logger.DebugContext(ctx, "spelling correction rejected", "input", text, "output", corrected)
		return text
	}
	n.spellCache.Set(text, corrected)
	return corrected
}

func (n *QueryNormalizer) acceptCorrection(original, corrected string) bool {
	if corrected == "" {
		return false
	}
	if len(strings.Fields(corrected)) > 2*len(strings.Fields(original))+3 {
		return false
	}
	for _, acronym := range n.terms.acronymsIn(original) {
		if !containsWordFold(corrected, acronym) {
			return false
		}
	}
	return true
}

func (n *QueryNormalizer) rewriteVague(ctx context.Context, text string, history []domain.ChatMessage) rewriteResult {
	if len(history) == 0 || len(strings.Fields(text)) >= rewriteMaxWords {
		return rewriteResult{outcome: rewriteSkipped}
	}

	ctx, cancel := context.WithTimeout(ctx, n.limits.RewriteTimeout)
	defer cancel()

	recent := lastTurns(history, n.limits.HistoryTurns)
	answer, err := n.completer.Complete(ctx, buildRewriteMessages(text, recent), domain.ClassifierOptions)
	if err != nil {
		n.logger.WarnContext(ctx, "query rewrite failed, keeping original", "error", err)
		return rewriteResult{outcome: rewriteFailed}
	}

	rewritten := sanitizeModelText(answer)
	if rewritten == "" || strings.Contains(strings.ToUpper(rewritten), keepOriginalSentinel) {
		return rewriteResult{outcome: rewriteKept}
	}
	if len(strings.Fields(rewritten)) > rewriteMaxOutputWords {
		n.logger.WarnContext(ctx, "query rewrite too long, keeping original", "rewrite", rewritten)
		return rewriteResult{outcome: rewriteKept}
	}

	for _, acronym := range n.terms.acronymsIn(text) {
		if !containsWordFold(rewritten, acronym) {
			rewritten += " " + acronym
		}
	}
	return rewriteResult{outcome: rewriteApplied, text: rewritten}
}

// extractTopicTerms strips role and relational words from a list-names
// query so the search targets the topic. Acronyms, camelCase tokens and long
// tokens are preferred; other keywords are used only when none exist.
func (n *QueryNormalizer) extractTopicTerms(text string) string {
	var preferred, others []string
	seen := make(map[string]struct{})
	for _, token := range splitWords(text) {
		lower := strings.ToLower(token)
		if n.terms.isIgnored(lower) || n.terms.isListNamesNoise(lower) {
			continue
		}

		term := ""
		isPreferred := true
		if canonical, ok := n.terms.canonicalAcronym(token); ok {
			term = canonical
		} else if camelCaseToken.MatchString(token) {
			term = token
		} else if utf8.RuneCountInString(lower) >= topicTermMinRunes && !n.terms.isStopword(lower) {
			term = lower
		} else if utf8.RuneCountInString(lower) >= minKeywordLength && !n.terms.isStopword(lower) {
			term = lower
			isPreferred = false
		}
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		if isPreferred {
			preferred = append(preferred, term)
		} else {
			others = append(others, term)
		}
	}

	if len(preferred) > 0 {
		return strings.Join(preferred, " ")
	}
	return strings.Join(others, " ")
}

func buildSmallTalkMessages(text string, hasHistory bool) []domain.ChatMessage {
	system := `You classify chat messages sent to a university research assistant.
Answer with exactly one word: SMALL_TALK or SUBSTANTIVE.
SMALL_TALK: a pure greeting, thanks or goodbye with no implied request.
SUBSTANTIVE: anything that needs information, including short follow-ups such as "show me", "more" or "sure" when the conversation already has prior turns.
When unsure, answer SUBSTANTIVE.`
	user := fmt.Sprintf("Conversation has prior turns: %t\nMessage: %s", hasHistory, text)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

func buildSpellMessages(text string, protected []string) []domain.ChatMessage {
	system := fmt.Sprintf(`Correct obvious spelling mistakes in the user's text.
Keep the meaning, word order and casing.
Never change these terms: %s, or any person, place or organisation name.
Reply with the corrected text only, without quotes or commentary.
If nothing needs fixing, reply with the text unchanged.`, strings.Join(protected, ", "))
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: text},
	}
}

func buildRewriteMessages(text string, recent []domain.ChatMessage) []domain.ChatMessage {
	system := `You turn vague follow-up questions into standalone search queries for a research database.
Use the conversation to resolve pronouns and references such as "they", "it" or "that project".
Keep every technical acronym exactly as written.
Reply with a search query of at most 10 words, or with KEEP_ORIGINAL if the question is already clear on its own.
Reply with the query or KEEP_ORIGINAL only.`

	var b strings.Builder
	for _, turn := range recent {
		content := turn.Content
		if utf8.RuneCountInString(content) > historyTurnMaxRunes {
			content = string([]rune(content)[:historyTurnMaxRunes]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, content)
	}
	user := fmt.Sprintf("Conversation:\n%s\nFollow-up question: %s", b.String(), text)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

// sanitizeModelText keeps the first non-empty line of a model reply and
// strips labels and wrapping quotes.
func sanitizeModelText(answer string) string {
	line := ""
	for _, candidate := range strings.Split(answer, "\n") {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			line = candidate
			break
		}
	}
	line = modelLabelPrefix.ReplaceAllString(line, "")
	for {
		trimmed := strings.TrimSpace(line)
		unquoted := trimWrappingQuotes(trimmed)
		if unquoted == trimmed {
			return trimmed
		}
		line = unquoted
	}
}

func trimWrappingQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"`", "`"}, {"“", "”"}, {"‘", "’"}, {"«", "»"}}
	for _, pair := range pairs {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return s[len(pair[0]) : len(s)-len(pair[1])]
		}
	}
	return s
}

func containsWordFold(text, word string) bool {
	for _, token := range splitWords(text) {
		if strings.EqualFold(token, word) {
			return true
		}
	}
	return false
}

func cleanHistory(history []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" || msg.Role == domain.RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func lastTurns(history []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

type noopTextCache struct{}

func (noopTextCache) Get(string) (string, bool) { return "", false }
func (noopTextCache) Set(string, string)        {}
