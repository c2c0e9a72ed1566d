package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sipac-backend/internal/components/chrono"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store shared between several instances of the service, entries expire
// through redis key ttls.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	time   chrono.TimeAPI
}

// NewRedisStore creates a RedisStore, keys are namespaced with `prefix`.
func NewRedisStore(client *redis.Client, prefix string, time chrono.TimeAPI) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "sipac:session"
	}
	return &RedisStore{redis: client, prefix: prefix, time: time}
}

func (s *RedisStore) cookiesKey() string {
	return s.prefix + ":cookies"
}

func (s *RedisStore) failuresKey() string {
	return s.prefix + ":failures"
}

func (s *RedisStore) Get(ctx context.Context) (CookieSet, error) {
	data, err := s.redis.Get(ctx, s.cookiesKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return CookieSet{}, ErrNotFound
	}
	if err != nil {
		return CookieSet{}, fmt.Errorf("redis get: %w", err)
	}

	var set CookieSet
	err = json.Unmarshal(data, &set)
	if err != nil {
		return CookieSet{}, fmt.Errorf("unmarshal cookie set: %w", err)
	}
	if set.Expired(s.time.Now()) {
		return CookieSet{}, ErrNotFound
	}
	return set, nil
}

func (s *RedisStore) Set(ctx context.Context, set CookieSet) error {
	ttl := set.ExpiresAt.Sub(s.time.Now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal cookie set: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.cookiesKey(), data, ttl)
		pipe.Del(ctx, s.failuresKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearCookies(ctx context.Context) error {
	err := s.redis.Del(ctx, s.cookiesKey()).Err()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.redis.Del(ctx, s.cookiesKey(), s.failuresKey()).Err()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Failures(ctx context.Context) (int, error) {
	value, err := s.redis.Get(ctx, s.failuresKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse failure counter: %w", err)
	}
	return n, nil
}

func (s *RedisStore) AddFailure(ctx context.Context, cooldown time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.failuresKey())
		pipe.Expire(ctx, s.failuresKey(), cooldown)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return int(incr.Val()), nil
}
