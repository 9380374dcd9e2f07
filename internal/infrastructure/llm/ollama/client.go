package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client for an Ollama server. executor may be nil, in which
// case calls are made once without retries.
func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type ChatCompleter struct {
	client *Client
}

func NewChatCompleter(client *Client) *ChatCompleter {
	return &ChatCompleter{client: client}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func (c *ChatCompleter) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error) {
	request := chatRequest{
		Model:    c.client.chatModel,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   false,
		Options:  chatOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens},
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := c.client.call(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrProviderFailure, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	err := c.executor.Execute(ctx, "ollama."+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}, resilience.ClassifyTransport)
	if err != nil {
		return resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyTransport)
	}
	return nil
}
