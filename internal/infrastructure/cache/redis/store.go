package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

// Config holds connection parameters for the shared cache.
type Config struct {
	Addrs    []string
	Password string
}

// Store is a byte-oriented key/value cache backed by Redis.
type Store struct {
	client rueidis.Client
}

func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreForTest wraps an existing client, typically a rueidis mock.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}

func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "redis ping", err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(key).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "redis get", fmt.Errorf("key %q", key))
		}
		return nil, domain.WrapError(domain.ErrTemporary, "redis get", err)
	}
	return data, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	builder := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "redis set", err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
