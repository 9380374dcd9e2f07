package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/observability/metrics"
)

type fakeSearch struct {
	last domain.SearchRequest
	docs []domain.ScoredDocument
	err  error
}

func (f *fakeSearch) Search(_ context.Context, req domain.SearchRequest) ([]domain.ScoredDocument, error) {
	f.last = req
	return f.docs, f.err
}

type fakeNormalizer struct {
	history []domain.ChatMessage
}

func (f *fakeNormalizer) Normalize(_ context.Context, raw string, history []domain.ChatMessage) (domain.Query, error) {
	f.history = history
	return domain.Query{Raw: raw, Corrected: raw, SearchText: raw, Keywords: []string{"BECCS"}}, nil
}

type fakeChat struct {
	last domain.ChatRequest
	err  error
}

func (f *fakeChat) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatAnswer, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatAnswer{Text: "answer", Sources: []domain.ScoredDocument{}, ContextCount: 1}, nil
}

type fakeFeedback struct {
	submitted []domain.Feedback
}

func (f *fakeFeedback) SubmitFeedback(_ context.Context, feedback domain.Feedback) (*domain.Feedback, error) {
	if feedback.Rating != 1 && feedback.Rating != -1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", fmt.Errorf("rating must be -1 or 1"))
	}
	feedback.ID = "fb-1"
	f.submitted = append(f.submitted, feedback)
	return &feedback, nil
}

func testServices() Services {
	return Services{
		Search: &fakeSearch{docs: []domain.ScoredDocument{{
			Document:   domain.Document{ID: "d1", Title: "BECCS at KTH"},
			Similarity: 0.8,
		}}},
		Normalizer: &fakeNormalizer{},
		Chat:       &fakeChat{},
		Feedback:   &fakeFeedback{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, services Services) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, services, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router.Handler()
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzAndRequestID(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, testServices())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestSearchUsesDefaultThreshold(t *testing.T) {
	services := testServices()
	handler := newTestHandler(t, config.Config{ChatContextThreshold: 0.45}, services)

	res := postJSON(handler, "/v1/search", `{"query":"carbon capture","limit":3}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	search := services.Search.(*fakeSearch)
	if search.last.Threshold != 0.45 || search.last.Limit != 3 || search.last.Query != "carbon capture" {
		t.Fatalf("unexpected search request %+v", search.last)
	}

	var body searchResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Results[0].ID != "d1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSearchExplicitZeroThreshold(t *testing.T) {
	services := testServices()
	handler := newTestHandler(t, config.Config{ChatContextThreshold: 0.45}, services)

	res := postJSON(handler, "/v1/search", `{"query":"wind","threshold":0}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := services.Search.(*fakeSearch).last.Threshold; got != 0 {
		t.Fatalf("expected explicit zero threshold, got %v", got)
	}
}

func TestSearchEmptyResultIsArray(t *testing.T) {
	services := testServices()
	services.Search = &fakeSearch{}
	handler := newTestHandler(t, config.Config{}, services)

	res := postJSON(handler, "/v1/search", `{"query":"nothing"}`)
	if !strings.Contains(res.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", res.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, testServices())

	cases := []struct {
		name string
		path string
		body string
	}{
		{name: "malformed json", path: "/v1/search", body: `{"query":`},
		{name: "missing query", path: "/v1/search", body: `{"limit":5}`},
		{name: "empty query", path: "/v1/search", body: `{"query":""}`},
		{name: "negative threshold", path: "/v1/search", body: `{"query":"x","threshold":-0.5}`},
		{name: "unknown field", path: "/v1/search", body: `{"query":"x","category":"energy"}`},
		{name: "bad history role", path: "/v1/chat", body: `{"message":"hi","history":[{"role":"bot","content":"x"}]}`},
		{name: "missing message", path: "/v1/normalize", body: `{}`},
		{name: "rating out of range", path: "/v1/feedback", body: `{"query":"q","answer":"a","rating":5}`},
	}
	for _, tc := range cases {
		res := postJSON(handler, tc.path, tc.body)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, res.Code, res.Body.String())
		}
		var body errorResponse
		if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Fatalf("%s: expected error body, got %s", tc.name, res.Body.String())
		}
	}
}

func TestSearchErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("blank")), want: http.StatusBadRequest},
		{err: domain.WrapError(domain.ErrDimensionMismatch, "search", errors.New("768 vs 1536")), want: http.StatusInternalServerError},
		{err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("timeout")), want: http.StatusServiceUnavailable},
		{err: domain.WrapError(domain.ErrProviderFailure, "embed", errors.New("empty")), want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		services := testServices()
		services.Search = &fakeSearch{err: tc.err}
		handler := newTestHandler(t, config.Config{}, services)

		res := postJSON(handler, "/v1/search", `{"query":"x"}`)
		if res.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
		if tc.want >= 500 && strings.Contains(res.Body.String(), "768") {
			t.Fatalf("expected internal cause to be hidden, got %s", res.Body.String())
		}
	}
}

func TestNormalizePassesHistory(t *testing.T) {
	services := testServices()
	handler := newTestHandler(t, config.Config{}, services)

	res := postJSON(handler, "/v1/normalize", `{"message":"who are they?","history":[{"role":"user","content":"BECCS at KTH"}]}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	history := services.Normalizer.(*fakeNormalizer).history
	if len(history) != 1 || history[0].Role != domain.RoleUser {
		t.Fatalf("unexpected history %+v", history)
	}
	var q domain.Query
	if err := json.Unmarshal(res.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.SearchText != "who are they?" {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestChatRecordsMetrics(t *testing.T) {
	services := testServices()
	m := metrics.NewHTTPServerMetrics("api")
	router, err := NewRouter(config.Config{}, services, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	handler := router.Handler()

	res := postJSON(handler, "/v1/chat", `{"message":"BECCS projects","allow_web":true,"limit":2}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	last := services.Chat.(*fakeChat).last
	if !last.AllowWeb || last.Limit != 2 {
		t.Fatalf("unexpected chat request %+v", last)
	}

	metricsRes := httptest.NewRecorder()
	handler.ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRes.Body.String()
	if !strings.Contains(body, `path="/v1/chat"`) {
		t.Fatalf("expected route pattern label in metrics, got %s", body)
	}
	if !strings.Contains(body, "kra_chat_turns_total") {
		t.Fatalf("expected chat counter in metrics")
	}
}

func TestChatFailureReturns503(t *testing.T) {
	services := testServices()
	services.Chat = &fakeChat{err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("ollama down"))}
	handler := newTestHandler(t, config.Config{}, services)

	res := postJSON(handler, "/v1/chat", `{"message":"BECCS"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestFeedbackAccepted(t *testing.T) {
	services := testServices()
	handler := newTestHandler(t, config.Config{}, services)

	res := postJSON(handler, "/v1/feedback", `{"session_id":"s1","query":"BECCS","answer":"a","rating":1,"comment":"good"}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	submitted := services.Feedback.(*fakeFeedback).submitted
	if len(submitted) != 1 || submitted[0].SessionID != "s1" || submitted[0].Comment != "good" {
		t.Fatalf("unexpected feedback %+v", submitted)
	}

	res = postJSON(handler, "/v1/feedback", `{"query":"BECCS","answer":"a","rating":0}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero rating, got %d", res.Code)
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := requestIDMiddleware(recoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "internal error") {
		t.Fatalf("unexpected body %s", res.Body.String())
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, testServices())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, testServices())

	for _, id := range []string{"has space", strings.Repeat("x", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, id)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		got := res.Header().Get(requestIDHeader)
		if got == "" || got == id {
			t.Fatalf("expected generated request id for %q, got %q", id, got)
		}
	}
}

func TestAccessLogLevel(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/v1/search", http.StatusOK, slog.LevelInfo},
		{"/v1/search", http.StatusBadRequest, slog.LevelWarn},
		{"/healthz", http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tc := range cases {
		if got := accessLogLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("accessLogLevel(%q, %d) = %v, want %v", tc.path, tc.status, got, tc.want)
		}
	}
}
