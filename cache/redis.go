package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "livewatch:cache:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore implements Store on Redis so several processes share one
// snapshot. Keys expire server-side at the entry TTL; the size bound is left
// to the server's eviction policy.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisStore creates a RedisStore. Each operation gets its own timeout since
// the Store contract carries no context.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{client: client, timeout: timeout, logger: slog.Default()}
}

// WithLogger sets the logger read and decode failures are reported to.
func (s *RedisStore) WithLogger(logger *slog.Logger) *RedisStore {
	s.logger = logger
	return s
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns the entry for key. Redis errors are logged and reported as a miss.
func (s *RedisStore) Get(key string) (*Entry, bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("Failed to read cache entry", slog.Any("cacheKey", key), slog.Any("error", err.Error()))
		}
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Error("Failed to decode cache entry", slog.Any("cacheKey", key), slog.Any("error", err.Error()))
		return nil, false
	}
	return &entry, true
}

func (s *RedisStore) Set(key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, redisKeyPrefix+key, raw, entry.TTL).Err()
}

func (s *RedisStore) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// CompareAndDelete removes key if it still holds an entry stored at
// old.StoredAt. A concurrent write aborts the transaction and keeps the newer
// entry.
func (s *RedisStore) CompareAndDelete(key string, old *Entry) error {
	ctx, cancel := s.ctx()
	defer cancel()

	redisKey := redisKeyPrefix + key
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var current Entry
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode cache entry: %w", err)
		}
		if !current.StoredAt.Equal(old.StoredAt) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (s *RedisStore) Clear() error {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Entries() []*Entry {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.keys(ctx)
	if err != nil || len(keys) == 0 {
		return nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Error("Failed to list cache entries", slog.Any("error", err.Error()))
		return nil
	}
	out := make([]*Entry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry Entry
		if json.Unmarshal([]byte(raw), &entry) == nil {
			out = append(out, &entry)
		}
	}
	return out
}

func (s *RedisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
