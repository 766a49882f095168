package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each list as a Redis list. RPUSH appends at the tail so
// LRANGE 0 -1 returns insertion order.
type RedisStore struct {
	client redis.UniversalClient
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore builds a client for opts and verifies it with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	c := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		MaxRetries: -1, // reconnects are handled by Connector
	})
	s := &RedisStore{client: c}
	if err := s.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c redis.UniversalClient) *RedisStore {
	return &RedisStore{client: c}
}

func (s *RedisStore) Push(ctx context.Context, key string, item []byte) error {
	return s.client.RPush(ctx, key, item).Err()
}

func (s *RedisStore) Range(ctx context.Context, key string) ([][]byte, error) {
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = []byte(r)
	}
	return out, nil
}

func (s *RedisStore) DeleteAll(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
