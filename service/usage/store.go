package usage

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/brojonat/kora/service/kerr"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects a counter store to the given redis URL.
func NewRedisStore(url string) (Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, kerr.Wrap(kerr.ConfigError, "invalid usage limit store url", err)
	}
	return &redisStore{client: redis.NewClient(opts)}, nil
}

func (s *redisStore) Count(ctx context.Context, key string) (uint64, error) {
	n, err := s.client.Get(ctx, key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *redisStore) Increment(ctx context.Context, key string) (uint64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
