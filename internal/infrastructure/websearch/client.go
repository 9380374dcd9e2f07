package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/resilience"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client queries a JSON web search API. Results that come back without a
// title are handed to the enricher.
type Client struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
	enricher   *TitleEnricher
	logger     *slog.Logger
}

// NewClient builds the client. executor and enricher may be nil.
func NewClient(cfg Config, executor *resilience.Executor, enricher *TitleEnricher, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		executor:   executor,
		enricher:   enricher,
		logger:     logger,
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "web search", fmt.Errorf("query is required"))
	}
	if limit <= 0 {
		limit = 5
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := resilience.Call(ctx, c.executor, "websearch.search", func(ctx context.Context) (searchResponse, error) {
		return c.post(ctx, searchRequest{Query: query, MaxResults: limit})
	}, resilience.ClassifyTransport)
	if err != nil {
		return nil, resilience.WrapTemporary("web search", err, resilience.ClassifyTransport)
	}

	seen := make(map[string]struct{}, len(response.Results))
	results := make([]domain.WebResult, 0, len(response.Results))
	for _, item := range response.Results {
		link := strings.TrimSpace(item.URL)
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		snippet := strings.TrimSpace(item.Snippet)
		if snippet == "" {
			snippet = strings.TrimSpace(item.Content)
		}
		results = append(results, domain.WebResult{
			Title:   strings.TrimSpace(item.Title),
			URL:     link,
			Snippet: snippet,
		})
		if len(results) == limit {
			break
		}
	}

	if c.enricher != nil {
		c.enricher.Enrich(ctx, results)
	} else {
		for i := range results {
			if results[i].Title == "" {
				results[i].Title = DeriveTitle(results[i].URL)
			}
		}
	}

	c.logger.DebugContext(ctx, "web search finished", "results", len(results))
	return results, nil
}

func (c *Client) post(ctx context.Context, payload searchRequest) (searchResponse, error) {
	var out searchResponse
	body, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return out, &resilience.StatusError{
			Service:    "websearch",
			Operation:  "search",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}
