package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/bootstrap"
	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/observability/logging"
	"github.com/kirillkom/kth-research-assistant/internal/observability/metrics"
)

const feedbackSaveTimeout = 30 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger("worker", "info").Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.FeedbackSubject)
	err = worker.Queue.SubscribeFeedback(ctx, func(handlerCtx context.Context, feedback domain.Feedback) error {
		done := workerMetrics.BeginFeedback(feedback.CreatedAt)

		saveCtx, cancel := context.WithTimeout(handlerCtx, feedbackSaveTimeout)
		defer cancel()
		err := worker.Feedback.RecordFeedback(saveCtx, feedback)
		done(feedback.Rating, err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
