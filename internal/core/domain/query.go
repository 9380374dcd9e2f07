package domain

// Query is the per-request result of query understanding.
type Query struct {
	Raw              string   `json:"raw"`
	Corrected        string   `json:"corrected"`
	SearchText       string   `json:"search_text"`
	Keywords         []string `json:"keywords"`
	Rewritten        bool     `json:"rewritten"`
	IsSmallTalk      bool     `json:"is_small_talk"`
	IsKTHSpecific    bool     `json:"is_kth_specific"`
	IsListNamesQuery bool     `json:"is_list_names_query"`
}

// SearchRequest is the input of the ranking pipeline. Threshold is the
// final fused-score cut; the looser vector lookup threshold is derived
// from it and never passed in.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold float64
	RawQuery  string
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// CompletionOptions tunes a single chat-completion call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// ClassifierOptions is used by the query classifiers, which need
// reproducible output.
var ClassifierOptions = CompletionOptions{Temperature: 0, MaxTokens: 64}
