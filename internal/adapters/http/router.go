package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
	"github.com/kirillkom/kth-research-assistant/internal/observability/metrics"
)

const serviceName = "api"

// Services groups the inbound ports served over HTTP.
type Services struct {
	Search     ports.SearchService
	Normalizer ports.QueryNormalizer
	Chat       ports.ChatService
	Feedback   ports.FeedbackService
}

type Router struct {
	cfg       config.Config
	services  Services
	metrics   *metrics.HTTPServerMetrics
	validator *bodyValidator
	logger    *slog.Logger
}

// NewRouter builds the API router. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	services Services,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) (*Router, error) {
	validator, err := newBodyValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		services:  services,
		metrics:   httpMetrics,
		validator: validator,
		logger:    logger,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(rt.logger), recoverMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, routePattern, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	r.Get("/healthz", rt.healthz)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)
		})
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.recordRejected)
		})

		r.With(rt.validateBody("SearchRequest")).Post("/v1/search", rt.search)
		r.With(rt.validateBody("NormalizeRequest")).Post("/v1/normalize", rt.normalize)
		r.With(rt.validateBody("ChatRequest")).Post("/v1/chat", rt.chat)
		r.With(rt.validateBody("FeedbackRequest")).Post("/v1/feedback", rt.feedback)
	})
	return r
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
	RawQuery  string   `json:"raw_query"`
}

type searchResponse struct {
	Results []domain.ScoredDocument `json:"results"`
	Count   int                     `json:"count"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !rt.decode(w, r, &req) {
		return
	}
	threshold := rt.cfg.ChatContextThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	docs, err := rt.services.Search.Search(r.Context(), domain.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: threshold,
		RawQuery:  req.RawQuery,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.ScoredDocument{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: docs, Count: len(docs)})
}

type normalizeRequest struct {
	Message string               `json:"message"`
	History []domain.ChatMessage `json:"history"`
}

func (rt *Router) normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !rt.decode(w, r, &req) {
		return
	}
	q, err := rt.services.Normalizer.Normalize(r.Context(), req.Message, req.History)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type chatRequest struct {
	Message  string               `json:"message"`
	History  []domain.ChatMessage `json:"history"`
	Limit    int                  `json:"limit"`
	AllowWeb bool                 `json:"allow_web"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !rt.decode(w, r, &req) {
		return
	}

	start := time.Now()
	answer, err := rt.services.Chat.Chat(r.Context(), domain.ChatRequest{
		Message:  req.Message,
		History:  req.History,
		Limit:    req.Limit,
		AllowWeb: req.AllowWeb,
	})
	if rt.metrics != nil {
		rt.metrics.RecordChat(serviceName, answer, time.Since(start))
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (rt *Router) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !rt.decode(w, r, &req) {
		return
	}
	saved, err := rt.services.Feedback.SubmitFeedback(r.Context(), domain.Feedback{
		SessionID: req.SessionID,
		Query:     req.Query,
		Answer:    req.Answer,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordFeedback(serviceName, saved.Rating)
	}
	writeJSON(w, http.StatusAccepted, saved)
}

func (rt *Router) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "invalid json",
			RequestID: requestIDFromContext(r.Context()),
		})
		return false
	}
	return true
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		rt.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		rt.logger.DebugContext(r.Context(), "request rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{
		Error:     publicErrorMessage(status, err),
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
