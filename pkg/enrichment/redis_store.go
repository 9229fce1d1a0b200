package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "threatsage:intel:"

// RedisStore keeps cache entries in Redis with a native expiry equal to the
// cache TTL. The in-entry timestamp is still checked by the Enricher.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis parses url, connects, and pings the server.
func DialRedis(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("component", "cache").Str("key", key).Msg("Redis get error")
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn().Err(err).Str("component", "cache").Str("key", key).Msg("Corrupt redis cache entry")
		return Entry{}, false
	}
	return entry, true
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Flush implements Store. Redis writes are already durable from our side.
func (s *RedisStore) Flush() error { return nil }

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
