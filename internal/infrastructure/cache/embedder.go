package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

// SharedStore is an optional second cache tier shared between replicas.
// Get returns domain.ErrNotFound on a miss.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder memoizes query embeddings, first in process memory and then
// in an optional shared store. Keys are namespaced by model so vectors from
// different embedding models never mix.
type CachedEmbedder struct {
	inner      ports.Embedder
	local      *TTLCache[[]float32]
	shared     SharedStore
	sharedTTL  time.Duration
	namespace  string
	cacheTotal *prometheus.CounterVec
	logger     *slog.Logger
}

// NewCachedEmbedder wraps inner. shared and cacheTotal may be nil.
// cacheTotal carries the labels "tier" and "result".
func NewCachedEmbedder(
	inner ports.Embedder,
	local *TTLCache[[]float32],
	shared SharedStore,
	sharedTTL time.Duration,
	model string,
	cacheTotal *prometheus.CounterVec,
	logger *slog.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		inner:      inner,
		local:      local,
		shared:     shared,
		sharedTTL:  sharedTTL,
		namespace:  model,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := NormalizeKey(text)

	if vec, ok := c.local.Get(key); ok {
		c.inc("local", "hit")
		return cloneVector(vec), nil
	}
	c.inc("local", "miss")

	sharedKey := c.sharedKey(key)
	if c.shared != nil {
		if vec, ok := c.getShared(ctx, sharedKey); ok {
			c.inc("shared", "hit")
			c.local.Set(key, vec)
			return cloneVector(vec), nil
		}
		c.inc("shared", "miss")
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	c.local.Set(key, cloneVector(vec))
	if c.shared != nil {
		if err := c.shared.SetWithTTL(ctx, sharedKey, vectorToBytes(vec), c.sharedTTL); err != nil {
			c.logger.WarnContext(ctx, "failed to store shared embedding", "key", sharedKey, "error", err)
		}
	}
	return vec, nil
}

func (c *CachedEmbedder) getShared(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "failed to read shared embedding", "key", key, "error", err)
		}
		return nil, false
	}
	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to decode shared embedding", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) sharedKey(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return "emb:" + c.namespace + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) inc(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached embedding length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
