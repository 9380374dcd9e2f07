package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// TitleEnricher fills in missing result titles by fetching each page with a
// short per-URL deadline on a bounded worker pool.
type TitleEnricher struct {
	pool       *ants.Pool
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func NewTitleEnricher(workers int, timeout time.Duration, logger *slog.Logger) (*TitleEnricher, error) {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create title pool: %w", err)
	}
	return &TitleEnricher{
		pool:       pool,
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Enrich sets Title on every result that lacks one, in place. A page that
// cannot be fetched in time gets a title derived from its URL.
func (e *TitleEnricher) Enrich(ctx context.Context, results []domain.WebResult) {
	var wg sync.WaitGroup
	for i := range results {
		if results[i].Title != "" {
			continue
		}
		result := &results[i]
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			result.Title = e.title(ctx, result.URL)
		})
		if err != nil {
			wg.Done()
			e.logger.WarnContext(ctx, "title enrichment pool rejected task", "error", err)
			result.Title = DeriveTitle(result.URL)
		}
	}
	wg.Wait()
}

func (e *TitleEnricher) title(ctx context.Context, pageURL string) string {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	title, err := FetchTitle(ctx, e.httpClient, pageURL)
	if err != nil {
		e.logger.DebugContext(ctx, "title fetch failed, deriving from url", "url", pageURL, "error", err)
		return DeriveTitle(pageURL)
	}
	return title
}

func (e *TitleEnricher) Release() {
	e.pool.Release()
}
