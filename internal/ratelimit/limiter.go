// Package ratelimit implements the failed-login counter backing the web
// console. The store is optional: without a Redis address the limiter is a
// no-op and never blocks a login.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldops/instalog/internal/common"
)

// Limiter thresholds. A login is short-circuited once the counter reaches
// MaxAttempts before credential verification.
const (
	MaxAttempts = 5
	AttemptTTL  = 15 * time.Minute

	keyPrefix = "web_login_attempts:"
)

// LoginKey builds the counter key for a client IP and username.
func LoginKey(ip, username string) string {
	return keyPrefix + ip + ":" + strings.ToLower(username)
}

// Limiter counts failed login attempts in Redis with a TTL per key.
type Limiter struct {
	rdb    *redis.Client
	logger *common.Logger
}

// New creates a limiter. An empty address returns a disabled limiter.
func New(logger *common.Logger, addr string) *Limiter {
	if addr == "" {
		return &Limiter{logger: logger}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	logger.Info().Str("addr", addr).Msg("Login rate limiter enabled")
	return &Limiter{rdb: rdb, logger: logger}
}

// NewWithClient wraps an existing Redis client (used by tests).
func NewWithClient(logger *common.Logger, rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, logger: logger}
}

// Enabled reports whether a backing store is configured.
func (l *Limiter) Enabled() bool {
	return l.rdb != nil
}

// Attempts returns the current counter value for key, 0 when absent.
func (l *Limiter) Attempts(ctx context.Context, key string) (int64, error) {
	if l.rdb == nil {
		return 0, nil
	}
	n, err := l.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limiter get: %w", err)
	}
	return n, nil
}

// RecordFailure increments the counter, setting the TTL on first write.
func (l *Limiter) RecordFailure(ctx context.Context, key string) error {
	if l.rdb == nil {
		return nil
	}
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limiter incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, AttemptTTL).Err(); err != nil {
			return fmt.Errorf("rate limiter expire: %w", err)
		}
	}
	return nil
}

// Reset deletes the counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l.rdb == nil {
		return nil
	}
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rate limiter del: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	if l.rdb != nil {
		return l.rdb.Close()
	}
	return nil
}
