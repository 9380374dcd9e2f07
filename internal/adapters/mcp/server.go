package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

const (
	serverName           = "kth-research-assistant"
	toolSearchResearch   = "search_research"
	toolNormalizeQuery   = "normalize_query"
	defaultToolLimit     = 5
	defaultToolThreshold = 0.45
)

// Tools exposes the ranking pipeline and the query normalizer as MCP tools.
type Tools struct {
	search     ports.SearchService
	normalizer ports.QueryNormalizer
	limit      int
	threshold  float64
	logger     *slog.Logger
}

// NewTools builds the tool handlers. Non-positive defaults fall back to
// limit 5 and threshold 0.45.
func NewTools(search ports.SearchService, normalizer ports.QueryNormalizer, limit int, threshold float64, logger *slog.Logger) *Tools {
	if limit <= 0 {
		limit = defaultToolLimit
	}
	if threshold <= 0 {
		threshold = defaultToolThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		search:     search,
		normalizer: normalizer,
		limit:      limit,
		threshold:  threshold,
		logger:     logger,
	}
}

// NewServer registers the tools on a new MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolSearchResearch,
		mcp.WithDescription("Search KTH research documents with hybrid vector and keyword ranking. Returns ranked documents as JSON."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text, for example a topic or a researcher name.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents to return.")),
		mcp.WithNumber("threshold", mcp.Description("Minimum fused relevance score between 0 and 1.")),
	), tools.SearchResearch)

	if tools.normalizer != nil {
		s.AddTool(mcp.NewTool(toolNormalizeQuery,
			mcp.WithDescription("Spell-correct a user message, extract keywords and classify it as small talk or a research question."),
			mcp.WithString("message", mcp.Required(), mcp.Description("Raw user message.")),
		), tools.NormalizeQuery)
	}
	return s
}

func (t *Tools) SearchResearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs, err := t.search.Search(ctx, domain.SearchRequest{
		Query:     query,
		Limit:     req.GetInt("limit", t.limit),
		Threshold: req.GetFloat("threshold", t.threshold),
	})
	if err != nil {
		return t.toolError(ctx, toolSearchResearch, err), nil
	}
	if docs == nil {
		docs = []domain.ScoredDocument{}
	}
	return jsonResult(map[string]any{"results": docs, "count": len(docs)})
}

func (t *Tools) NormalizeQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, err := t.normalizer.Normalize(ctx, message, nil)
	if err != nil {
		return t.toolError(ctx, toolNormalizeQuery, err), nil
	}
	return jsonResult(q)
}

// toolError reports failures inside the tool result so the calling model can
// see them; only input errors expose their cause.
func (t *Tools) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrInvalidInput) {
		return mcp.NewToolResultError(err.Error())
	}
	t.logger.ErrorContext(ctx, "mcp tool failed", "tool", tool, "error", err)
	if errors.Is(err, domain.ErrTemporary) || errors.Is(err, domain.ErrProviderFailure) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is temporarily unavailable, try again later", tool))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed", tool))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
