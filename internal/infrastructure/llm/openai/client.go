package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/resilience"
)

// Config holds the settings of an OpenAI-compatible backend.
type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// Dimensions is forwarded to the embeddings endpoint when positive.
	Dimensions int
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimensions int
	executor   *resilience.Executor
}

// New builds a client. executor may be nil.
func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		chatModel:  cfg.ChatModel,
		embedModel: openai.EmbeddingModel(cfg.EmbedModel),
		dimensions: cfg.Dimensions,
		executor:   executor,
	}
}

type ChatCompleter struct {
	client *Client
}

func NewChatCompleter(client *Client) *ChatCompleter {
	return &ChatCompleter{client: client}
}

func (c *ChatCompleter) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.client.chatModel,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: requestTemperature(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := resilience.Call(ctx, c.client.executor, "openai.chat", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.client.api.CreateChatCompletion(ctx, req)
	}, classifyAPIError)
	if err != nil {
		return "", parseAPIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrProviderFailure, "openai chat", errors.New("empty choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// requestTemperature keeps an explicit 0 on the wire. go-openai omits a zero
// temperature, which makes the provider fall back to its default of 1.
func requestTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.client.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.client.dimensions > 0 {
		req.Dimensions = e.client.dimensions
	}

	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(ctx, req)
	}, classifyAPIError)
	if err != nil {
		return nil, parseAPIError("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.WrapError(domain.ErrProviderFailure, "openai embed", errors.New("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyAPIError(err error) resilience.ErrorClassification {
	if status := statusCode(err); status > 0 {
		if resilience.RetryableStatus(status) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyTransport(err)
}

// parseAPIError extracts a readable message and tags the failure as
// temporary (retryable status, network, open circuit) or as a provider
// failure.
func parseAPIError(operation string, err error) error {
	op := "openai " + operation
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}

	kind := domain.ErrProviderFailure
	if classifyAPIError(err).Retryable || resilience.IsCircuitOpen(err) {
		kind = domain.ErrTemporary
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.WrapError(kind, op, fmt.Errorf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = strings.TrimSpace(string(reqErr.Body))
		}
		return domain.WrapError(kind, op, fmt.Errorf("api error %d: %s", reqErr.HTTPStatusCode, detail))
	}
	return domain.WrapError(kind, op, err)
}

// extractDetail reads the "detail" field some compatible gateways use
// instead of the OpenAI error object.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
