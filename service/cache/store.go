// Package cache provides a TTL'd view over on-chain accounts. When the
// backing store is disabled or unreachable, reads degrade to direct RPC;
// store writes are best-effort and never fail a request.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by a Store when the key is absent.
var ErrMiss = errors.New("cache miss")

// Store is a minimal key-value contract for the account cache. The redis
// implementation is the production store; tests use an in-memory map.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// redisStore adapts go-redis to the Store interface.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the given redis URL.
func NewRedisStore(url string) (Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
