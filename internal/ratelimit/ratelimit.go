// Package ratelimit throttles credential endpoints with fixed windows kept in
// Redis, so every replica shares the same counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimited is returned to callers that exceeded their window.
var ErrLimited = errors.New("rate limit exceeded")

// Result describes one attempt against the limiter.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config holds Redis connection and window settings.
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0).
	URL string

	// Attempts allowed per key within Window.
	Attempts int
	Window   time.Duration

	// Prefix namespaces the counter keys.
	Prefix string
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		URL:      "redis://localhost:6379/0",
		Attempts: 10,
		Window:   15 * time.Minute,
		Prefix:   "aria:ratelimit:",
	}
}

// RedisLimiter is a fixed-window counter stored in Redis.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg Config) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient creates a limiter with an existing client (for testing).
func NewRedisWithClient(client *redis.Client, cfg Config) *RedisLimiter {
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return &RedisLimiter{client: client, cfg: cfg}
}

// Allow records an attempt for key and reports whether it fits the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.cfg.Prefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("increment counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set window: %w", err)
		}
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("read window: %w", err)
	}
	// A counter without expiry would never reset.
	if ttl < 0 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("set window: %w", err)
		}
		ttl = l.cfg.Window
	}

	remaining := l.cfg.Attempts - int(count)
	if remaining < 0 {
		return Result{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}
	return Result{Allowed: true, Remaining: remaining}, nil
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Nop allows every attempt. It is used when no Redis URL is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}
