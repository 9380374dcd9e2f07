package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/kth-research-assistant/internal/adapters/mcp"
	"github.com/kirillkom/kth-research-assistant/internal/bootstrap"
	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	// stdout carries protocol frames; everything else goes to stderr.
	if err := config.LoadDotEnv(); err != nil {
		logging.New(os.Stderr, "mcp", "info").Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.Search, app.Normalizer, cfg.SearchDefaultLimit, cfg.ChatContextThreshold, logger)
	if err := server.ServeStdio(mcpadapter.NewServer(tools, version)); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
