package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/resilience"
)

const (
	workerQueueGroup = "feedback-workers"

	// feedbackIDHeader carries the feedback id so consumers can drop
	// redelivered votes; JetStream streams use it for deduplication too.
	feedbackIDHeader   = "Nats-Msg-Id"
	contentTypeHeader  = "Content-Type"
	feedbackMediaType  = "application/json"
	connectTimeout     = 2 * time.Second
	reconnectWait      = 2 * time.Second
	maxReconnects      = 60
	drainFlushDeadline = 5 * time.Second
)

// conn is the subset of *nats.Conn the queue needs.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Flush() error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Queue carries answer feedback from the API to the worker.
type Queue struct {
	conn     conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Option func(*Queue)

// WithExecutor runs publishes under retry and circuit breaking.
func WithExecutor(executor *resilience.Executor) Option {
	return func(q *Queue) { q.executor = executor }
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Dial connects to NATS as clientName. The connection keeps retrying in the
// background when the server is not up yet, so the API can start first.
func Dial(url, subject, clientName string, opts ...Option) (*Queue, error) {
	q := newQueue(nil, subject, opts...)

	nc, err := nats.Connect(
		url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			q.logger.Warn("feedback queue disconnected", "subject", subject, "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			q.logger.Info("feedback queue reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q.conn = nc
	return q, nil
}

func newQueue(c conn, subject string, opts ...Option) *Queue {
	q := &Queue{conn: c, subject: subject, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishFeedback(ctx context.Context, fb domain.Feedback) error {
	payload, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	msg := nats.NewMsg(q.subject)
	msg.Data = payload
	msg.Header.Set(contentTypeHeader, feedbackMediaType)
	if fb.ID != "" {
		msg.Header.Set(feedbackIDHeader, fb.ID)
	}

	err = q.executor.Execute(ctx, "nats.publish_feedback", func(context.Context) error {
		return q.conn.PublishMsg(msg)
	}, classifyNATSError)
	if err != nil {
		return resilience.WrapTemporary("publish feedback", err, classifyNATSError)
	}
	return nil
}

// SubscribeFeedback blocks until ctx is done, delivering each message to
// handler on the shared worker queue group. The subscription is drained
// before returning so in-flight votes are still stored.
func (q *Queue) SubscribeFeedback(ctx context.Context, handler func(context.Context, domain.Feedback) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		q.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainFlushDeadline); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.Feedback) error) {
	var fb domain.Feedback
	if err := json.Unmarshal(msg.Data, &fb); err != nil {
		q.logger.ErrorContext(ctx, "dropping malformed feedback message", "error", err, "bytes", len(msg.Data))
		return
	}
	if fb.ID == "" && msg.Header != nil {
		fb.ID = msg.Header.Get(feedbackIDHeader)
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, fb); err != nil {
		q.logger.ErrorContext(ctx, "feedback handler failed", "feedback_id", fb.ID, "error", err)
	}
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}
