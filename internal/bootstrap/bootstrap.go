package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/kth-research-assistant/internal/config"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
	"github.com/kirillkom/kth-research-assistant/internal/core/usecase"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/cache"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/llm/openai"
	natsqueue "github.com/kirillkom/kth-research-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/kth-research-assistant/internal/infrastructure/websearch"
	"github.com/kirillkom/kth-research-assistant/internal/observability/metrics"
)

const redisPingTimeout = 2 * time.Second

// Options selects the optional parts of the retrieval stack.
type Options struct {
	Logger *slog.Logger
	// Metrics may be nil; processes without an HTTP surface skip metrics.
	Metrics *metrics.HTTPServerMetrics
	// FeedbackPublisher connects to NATS so feedback can be submitted.
	FeedbackPublisher bool
}

// App is the retrieval stack shared by the API, MCP and CLI processes.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Search     *usecase.SearchUseCase
	Normalizer *usecase.QueryNormalizer
	Chat       *usecase.ChatUseCase
	Feedback   *usecase.FeedbackUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	terms, err := LoadTermIndex(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })

	executor := newExecutor(cfg, logger, opts.Metrics)
	completer, embedder, embedModel, err := newProviders(cfg, executor)
	if err != nil {
		return nil, err
	}

	var cacheCounter *prometheus.CounterVec
	if opts.Metrics != nil {
		cacheCounter = opts.Metrics.EmbeddingCacheCounter()
	}
	shared := app.connectSharedCache(ctx, cfg)
	cachedEmbedder := cache.NewCachedEmbedder(
		embedder,
		cache.NewTTLCache[[]float32](cfg.CacheTTL, cfg.CacheCapacity, nil),
		shared,
		cfg.CacheTTL,
		embedModel,
		cacheCounter,
		logger,
	)

	searchOpts := []usecase.SearchOption{usecase.WithSearchLogger(logger)}
	if opts.Metrics != nil {
		searchOpts = append(searchOpts, usecase.WithSearchObserver(opts.Metrics.SearchObserver("api")))
	}
	app.Search = usecase.NewSearchUseCase(
		postgres.NewCorpusRepository(db),
		cachedEmbedder,
		terms,
		cfg.SearchLimits(),
		searchOpts...,
	)

	app.Normalizer = usecase.NewQueryNormalizer(
		completer,
		terms,
		cache.NewTTLCache[string](cfg.CacheTTL, cfg.CacheCapacity, nil),
		cfg.NormalizerLimits(),
		logger,
	)

	web, err := app.newWebSearcher(cfg, executor)
	if err != nil {
		return nil, err
	}
	app.Chat = usecase.NewChatUseCase(app.Normalizer, app.Search, completer, web, cfg.ChatLimits(), logger)

	if opts.FeedbackPublisher {
		queue, err := natsqueue.Dial(cfg.NATSURL, cfg.FeedbackSubject, "kra-api",
			natsqueue.WithExecutor(executor),
			natsqueue.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("init feedback queue: %w", err)
		}
		app.onClose(queue.Close)
		app.Feedback = usecase.NewFeedbackUseCase(queue, nil)
	}

	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// LoadTermIndex builds the term lists from the built-in lexicon and the
// optional LEXICON_FILE override.
func LoadTermIndex(cfg config.Config) (*usecase.TermIndex, error) {
	lex, err := config.LoadLexicon(cfg.LexiconFile)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	terms, err := usecase.NewTermIndex(lex)
	if err != nil {
		return nil, fmt.Errorf("build term index: %w", err)
	}
	return terms, nil
}

func newExecutor(cfg config.Config, logger *slog.Logger, m *metrics.HTTPServerMetrics) *resilience.Executor {
	opts := []resilience.Option{resilience.WithLogger(logger)}
	if m != nil {
		opts = append(opts, resilience.WithStateListener(m.RecordBreakerState))
	}
	return resilience.NewExecutor(cfg.Resilience(), opts...)
}

// newProviders returns the chat completer, the embedder and the embedding
// model name used to namespace cached vectors.
func newProviders(cfg config.Config, executor *resilience.Executor) (ports.ChatCompleter, ports.Embedder, string, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
		return ollama.NewChatCompleter(client), ollama.NewEmbedder(client), cfg.OllamaEmbedModel, nil
	case config.ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil, "", errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Dimensions: cfg.EmbeddingDimensions,
		}, executor)
		return openai.NewChatCompleter(client), openai.NewEmbedder(client), cfg.OpenAIEmbedModel, nil
	default:
		return nil, nil, "", fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// connectSharedCache returns nil when Redis is not configured or not
// reachable; the local tier keeps working either way.
func (a *App) connectSharedCache(ctx context.Context, cfg config.Config) cache.SharedStore {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	store, err := redis.NewStore(redis.Config{
		Addrs:    strings.Split(cfg.RedisAddr, ","),
		Password: cfg.RedisPassword,
	})
	if err != nil {
		a.Logger.WarnContext(ctx, "shared embedding cache disabled", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		a.Logger.WarnContext(ctx, "shared embedding cache disabled", "error", err)
		return nil
	}
	a.onClose(store.Close)
	return store
}

func (a *App) newWebSearcher(cfg config.Config, executor *resilience.Executor) (ports.WebSearcher, error) {
	if !cfg.WebSearchEnabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.WebSearchURL) == "" {
		return nil, errors.New("WEBSEARCH_URL is required when WEBSEARCH_ENABLED=true")
	}
	enricher, err := websearch.NewTitleEnricher(cfg.WebSearchEnrichWorkers, cfg.WebSearchTitleTimeout, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("init title enricher: %w", err)
	}
	a.onClose(enricher.Release)
	return websearch.NewClient(websearch.Config{
		URL:     cfg.WebSearchURL,
		APIKey:  cfg.WebSearchAPIKey,
		Timeout: cfg.WebSearchTimeout,
	}, executor, enricher, a.Logger), nil
}

// Worker is the feedback persistence process.
type Worker struct {
	Queue    *natsqueue.Queue
	Feedback *usecase.FeedbackUseCase

	db *sql.DB
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewFeedbackRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := natsqueue.Dial(cfg.NATSURL, cfg.FeedbackSubject, "kra-worker",
		natsqueue.WithExecutor(newExecutor(cfg, logger, nil)),
		natsqueue.WithLogger(logger),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init feedback queue: %w", err)
	}

	return &Worker{
		Queue:    queue,
		Feedback: usecase.NewFeedbackUseCase(nil, repo),
		db:       db,
	}, nil
}

func (w *Worker) Close() {
	w.Queue.Close()
	_ = w.db.Close()
}
