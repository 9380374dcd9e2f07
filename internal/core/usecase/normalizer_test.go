package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

func beccsHistory() []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Tell me about BECCS research at KTH"},
		{Role: domain.RoleAssistant, Content: "KTH studies bioenergy with carbon capture and storage (BECCS) in several projects."},
	}
}

func newTestNormalizer(completer *fakeCompleter, cache *mapTextCache) *QueryNormalizer {
	if cache == nil {
		cache = &mapTextCache{}
	}
	return NewQueryNormalizer(completer, testTerms, cache, domain.NormalizerLimits{}, nil)
}

func TestNormalizeKeepOriginalSentinelUsesCorrectedText(t *testing.T) {
	completer := &fakeCompleter{
		smallTalk: "SUBSTANTIVE",
		spell:     "What is BECCS used for?",
		rewrite:   "KEEP_ORIGINAL",
	}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "Waht is BECCS used for?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.SearchText != "What is BECCS used for?" {
		t.Fatalf("expected corrected original, got %q", q.SearchText)
	}
	if q.Rewritten {
		t.Fatalf("expected no rewrite")
	}
	if completer.rewriteCalls != 1 {
		t.Fatalf("expected one rewrite call, got %d", completer.rewriteCalls)
	}
}

func TestNormalizeRewriteFailureFallsBackToRawText(t *testing.T) {
	completer := &fakeCompleter{
		smallTalk:  "SUBSTANTIVE",
		spell:      "What about the pilot plant?",
		rewriteErr: errors.New("timeout"),
	}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "What abot the pilot plant?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.SearchText != "What abot the pilot plant?" {
		t.Fatalf("expected raw text after rewrite failure, got %q", q.SearchText)
	}
	if q.Corrected != "What about the pilot plant?" {
		t.Fatalf("expected correction to be recorded, got %q", q.Corrected)
	}
}

func TestNormalizeScenarioListNamesFollowUp(t *testing.T) {
	completer := &fakeCompleter{
		smallTalk: "SUBSTANTIVE",
		rewrite:   `"BECCS researchers at KTH"`,
	}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "who are they?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.SearchText != "BECCS" {
		t.Fatalf("expected topic-only query BECCS, got %q", q.SearchText)
	}
	if !q.Rewritten || !q.IsListNamesQuery || !q.IsKTHSpecific {
		t.Fatalf("expected rewritten list-names KTH query, got %+v", q)
	}
	if len(q.Keywords) != 1 || q.Keywords[0] != "BECCS" {
		t.Fatalf("expected keywords [BECCS], got %v", q.Keywords)
	}

	prompt := completer.lastRewrite[len(completer.lastRewrite)-1].Content
	if !strings.Contains(prompt, "BECCS research at KTH") || !strings.Contains(prompt, "who are they?") {
		t.Fatalf("expected history and question in rewrite prompt, got %q", prompt)
	}
}

func TestNormalizeRewriteUsesLastSixTurns(t *testing.T) {
	history := make([]domain.ChatMessage, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: "turn-" + string(rune('a'+i))})
	}
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", rewrite: "KEEP_ORIGINAL"}
	if _, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "and that one?", history); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	prompt := completer.lastRewrite[len(completer.lastRewrite)-1].Content
	if strings.Contains(prompt, "turn-d") || !strings.Contains(prompt, "turn-e") || !strings.Contains(prompt, "turn-j") {
		t.Fatalf("expected only the last six turns, got %q", prompt)
	}
}

func TestNormalizeRewriteRestoresDroppedAcronym(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", rewrite: "carbon capture projects in Sweden"}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "and BECCS in Sweden?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(q.SearchText, "BECCS") {
		t.Fatalf("expected BECCS to survive the rewrite, got %q", q.SearchText)
	}
}

func TestNormalizeRejectsOverlongRewrite(t *testing.T) {
	completer := &fakeCompleter{
		smallTalk: "SUBSTANTIVE",
		rewrite:   "BECCS bioenergy carbon capture storage projects negative emissions research groups Sweden Stockholm 2024",
	}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "and in Sweden?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.Rewritten || q.SearchText != q.Corrected {
		t.Fatalf("expected thirteen-word rewrite to be rejected, got %+v", q)
	}
}

func TestNormalizeAcceptsRewriteAtWordCap(t *testing.T) {
	completer := &fakeCompleter{
		smallTalk: "SUBSTANTIVE",
		rewrite:   "BECCS bioenergy carbon capture storage projects negative emissions research groups Sweden Stockholm",
	}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "and in Sweden?", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !q.Rewritten {
		t.Fatalf("expected twelve-word rewrite to be applied, got %+v", q)
	}
}

func TestNormalizeSkipsRewriteWithoutHistoryOrForLongMessages(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", rewrite: "should not be used"}
	n := newTestNormalizer(completer, nil)

	if _, err := n.Normalize(context.Background(), "What is BECCS?", nil); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	long := "please give me a complete overview of every carbon capture project that the energy department ran last year"
	if _, err := n.Normalize(context.Background(), long, beccsHistory()); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if completer.rewriteCalls != 0 {
		t.Fatalf("expected no rewrite calls, got %d", completer.rewriteCalls)
	}
}

func TestNormalizeSmallTalkRulesWhenClassifierFails(t *testing.T) {
	completer := &fakeCompleter{smallTalkErr: errors.New("unavailable")}
	n := newTestNormalizer(completer, nil)

	cases := []struct {
		text string
		want bool
	}{
		{text: "hi", want: true},
		{text: "Thank you so much!", want: true},
		{text: "hi, show me BECCS projects", want: false},
		{text: "thanks, tell me more", want: false},
		{text: "sure", want: false},
	}
	for _, tc := range cases {
		q, err := n.Normalize(context.Background(), tc.text, nil)
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if q.IsSmallTalk != tc.want {
			t.Fatalf("%q: expected small talk=%v", tc.text, tc.want)
		}
	}
}

func TestNormalizeUnrecognizedClassifierAnswerDefaultsToSubstantive(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "I am not sure"}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "sure", beccsHistory())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.IsSmallTalk {
		t.Fatalf("expected substantive classification")
	}
}

func TestNormalizeClassifierSmallTalk(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SMALL_TALK"}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "hello there", nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !q.IsSmallTalk {
		t.Fatalf("expected small talk")
	}
}

func TestSpellCorrectionSkipsShortAndLongInputs(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", spell: "unexpected"}
	n := newTestNormalizer(completer, nil)

	if _, err := n.Normalize(context.Background(), "AI", nil); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	long := "one two three four five six seven eight nine ten eleven twelve thirteen"
	q, err := n.Normalize(context.Background(), long, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if completer.spellCalls != 0 {
		t.Fatalf("expected no spelling calls, got %d", completer.spellCalls)
	}
	if q.Corrected != long {
		t.Fatalf("expected long input unchanged, got %q", q.Corrected)
	}
}

func TestSpellCorrectionIsCached(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", spell: "hydrogen storage"}
	cache := &mapTextCache{}
	n := newTestNormalizer(completer, cache)

	for i := 0; i < 3; i++ {
		q, err := n.Normalize(context.Background(), "hydrogn storage", nil)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if q.SearchText != "hydrogen storage" {
			t.Fatalf("expected corrected text, got %q", q.SearchText)
		}
	}
	if completer.spellCalls != 1 {
		t.Fatalf("expected one spelling call, got %d", completer.spellCalls)
	}
}

func TestSpellCorrectionFailureKeepsInput(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", spellErr: errors.New("rate limited")}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "hydrogn storage", nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.SearchText != "hydrogn storage" {
		t.Fatalf("expected input unchanged, got %q", q.SearchText)
	}
}

func TestSpellCorrectionRejectsDroppedAcronym(t *testing.T) {
	completer := &fakeCompleter{smallTalk: "SUBSTANTIVE", spell: "What is because?"}
	q, err := newTestNormalizer(completer, nil).Normalize(context.Background(), "What is BECCS?", nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.Corrected != "What is BECCS?" {
		t.Fatalf("expected correction to be rejected, got %q", q.Corrected)
	}
}

func TestNormalizeRejectsEmptyMessage(t *testing.T) {
	_, err := newTestNormalizer(&fakeCompleter{}, nil).Normalize(context.Background(), "  ", nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSanitizeModelText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: `"BECCS projects"`, want: "BECCS projects"},
		{in: "  'hydrogen'  \n extra", want: "hydrogen"},
		{in: "Rewritten query: wind power", want: "wind power"},
		{in: "“carbon capture”", want: "carbon capture"},
		{in: "\n\n`KEEP_ORIGINAL`", want: "KEEP_ORIGINAL"},
		{in: `"'nested quotes'"`, want: "nested quotes"},
	}
	for _, tc := range cases {
		if got := sanitizeModelText(tc.in); got != tc.want {
			t.Fatalf("sanitize(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestExtractTopicTermsPrefersAcronymsAndLongTokens(t *testing.T) {
	n := newTestNormalizer(&fakeCompleter{}, nil)
	cases := []struct {
		in   string
		want string
	}{
		{in: "BECCS researchers at KTH", want: "BECCS"},
		{in: "who works on electrification of ports", want: "electrification"},
		{in: "people working with OpenFOAM", want: "OpenFOAM"},
		{in: "researchers in wind", want: "wind"},
	}
	for _, tc := range cases {
		if got := n.extractTopicTerms(tc.in); got != tc.want {
			t.Fatalf("extract(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
