package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a session context store backed by Redis. Contexts are stored
// as JSON values under a namespaced key with a TTL, so sessions expire
// server-side without a sweeper. Redis serializes writes per key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis instance described by rawURL
// (redis://host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, rawURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(key string) string {
	return "gabelle:session:" + key
}

// Get returns the context for key, or ok=false when absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) (Context, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Context{}, false, nil
	}
	if err != nil {
		return Context{}, false, fmt.Errorf("reading session context: %w", err)
	}

	var sc Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return Context{}, false, fmt.Errorf("unmarshalling session context: %w", err)
	}
	return sc, true, nil
}

// Put overwrites the context for key and resets its TTL.
func (s *RedisStore) Put(ctx context.Context, key string, sc Context) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshalling session context: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session context: %w", err)
	}
	return nil
}

// Delete removes the context for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting session context: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
