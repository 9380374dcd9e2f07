package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

const namespace = "kra"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rateLimited     *prometheus.CounterVec

	searchPathTotal   *prometheus.CounterVec
	searchResults     *prometheus.HistogramVec
	chatTotal         *prometheus.CounterVec
	chatDuration      *prometheus.HistogramVec
	webFallbackTotal  *prometheus.CounterVec
	embeddingCache    *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	feedbackPublished *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rateLimited := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiting or backpressure.",
		},
		[]string{"service", "reason"},
	)
	searchPathTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "path_total",
			Help:      "Searches by the retrieval branch that produced the results.",
		},
		[]string{"service", "path"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of documents returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service"},
	)
	chatTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Chat turn duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"service"},
	)
	webFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "web_fallback_total",
			Help:      "Chat turns answered with web search results.",
		},
		[]string{"service"},
	)
	embeddingCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding_cache",
			Name:      "lookups_total",
			Help:      "Query embedding cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"operation"},
	)
	feedbackPublished := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "submitted_total",
			Help:      "Answer feedback submissions by rating.",
		},
		[]string{"service", "rating"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rateLimited,
		searchPathTotal,
		searchResults,
		chatTotal,
		chatDuration,
		webFallbackTotal,
		embeddingCache,
		breakerState,
		feedbackPublished,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		rateLimited:       rateLimited,
		searchPathTotal:   searchPathTotal,
		searchResults:     searchResults,
		chatTotal:         chatTotal,
		chatDuration:      chatDuration,
		webFallbackTotal:  webFallbackTotal,
		embeddingCache:    embeddingCache,
		breakerState:      breakerState,
		feedbackPublished: feedbackPublished,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. pathLabel maps a request to
// a low-cardinality route label; nil uses the raw URL path.
func (m *HTTPServerMetrics) Middleware(service string, pathLabel func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if pathLabel != nil {
			path = pathLabel(r)
		}
		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rateLimited.WithLabelValues(service, reason).Inc()
}

// SearchObserver returns a callback for the search pipeline.
func (m *HTTPServerMetrics) SearchObserver(service string) func(domain.RetrievalPath, int) {
	return func(path domain.RetrievalPath, results int) {
		m.searchPathTotal.WithLabelValues(service, string(path)).Inc()
		m.searchResults.WithLabelValues(service).Observe(float64(results))
	}
}

func (m *HTTPServerMetrics) RecordChat(service string, answer *domain.ChatAnswer, duration time.Duration) {
	outcome := "answered"
	switch {
	case answer == nil:
		outcome = "error"
	case answer.Query.IsSmallTalk:
		outcome = "small_talk"
	case answer.ContextCount == 0 && len(answer.WebResults) == 0:
		outcome = "no_context"
	}
	m.chatTotal.WithLabelValues(service, outcome).Inc()
	m.chatDuration.WithLabelValues(service).Observe(duration.Seconds())
	if answer != nil && len(answer.WebResults) > 0 {
		m.webFallbackTotal.WithLabelValues(service).Inc()
	}
}

// EmbeddingCacheCounter is handed to the cached embedder.
func (m *HTTPServerMetrics) EmbeddingCacheCounter() *prometheus.CounterVec {
	return m.embeddingCache
}

func (m *HTTPServerMetrics) RecordBreakerState(operation string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(operation).Set(value)
}

func (m *HTTPServerMetrics) RecordFeedback(service string, rating int) {
	m.feedbackPublished.WithLabelValues(service, ratingLabel(rating)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
