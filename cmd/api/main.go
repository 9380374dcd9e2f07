package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/kth-research-assistant/internal/adapters/http"
	"github.com/kirillkom/kth-research-assistant/internal/bootstrap"
	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/observability/logging"
	"github.com/kirillkom/kth-research-assistant/internal/observability/metrics"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger("api", "info").Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:            logger,
		Metrics:           httpMetrics,
		FeedbackPublisher: true,
	})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Search:     app.Search,
		Normalizer: app.Normalizer,
		Chat:       app.Chat,
		Feedback:   app.Feedback,
	}, httpMetrics, logger)
	if err != nil {
		logger.Error("router init error", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ChatGenerateTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort, "llm_provider", cfg.LLMProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
