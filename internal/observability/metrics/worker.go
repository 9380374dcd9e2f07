package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the feedback consumer: how long votes wait on the
// subject and how many of them reach the answer_feedback table.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	stored   *prometheus.CounterVec
	storeDur *prometheus.HistogramVec
	pending  prometheus.Gauge
	lag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	stored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "feedback",
			Name:        "stored_total",
			Help:        "Feedback events consumed by the worker, by rating and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"rating", "outcome"},
	)
	storeDur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "feedback",
			Name:        "store_duration_seconds",
			Help:        "Time spent persisting one feedback event.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30},
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	pending := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "feedback",
			Name:        "in_flight",
			Help:        "Feedback events currently being persisted.",
			ConstLabels: constLabels,
		},
	)
	lag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "feedback",
			Name:        "queue_lag_seconds",
			Help:        "Delay between the vote on an answer and the worker picking it up.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(stored, storeDur, pending, lag)

	return &WorkerMetrics{
		registry: registry,
		service:  service,
		stored:   stored,
		storeDur: storeDur,
		pending:  pending,
		lag:      lag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BeginFeedback marks one event as in flight and records its queue lag.
// The returned func must be called once with the event rating and the
// persistence error.
func (m *WorkerMetrics) BeginFeedback(submittedAt time.Time) func(rating int, err error) {
	start := time.Now()
	if !submittedAt.IsZero() {
		if lag := start.Sub(submittedAt); lag >= 0 {
			m.lag.Observe(lag.Seconds())
		}
	}
	m.pending.Inc()

	return func(rating int, err error) {
		m.pending.Dec()
		outcome := "stored"
		if err != nil {
			outcome = "failed"
		}
		m.stored.WithLabelValues(ratingLabel(rating), outcome).Inc()
		m.storeDur.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func ratingLabel(rating int) string {
	switch {
	case rating > 0:
		return "positive"
	case rating < 0:
		return "negative"
	default:
		return "neutral"
	}
}
