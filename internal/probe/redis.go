package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisProbeKey = "n8nstack:probe"
	redisDialWait = 5 * time.Second
)

// RedisProbe checks the queue backend. With ReadWrite set it also writes,
// reads back and deletes a scratch key.
type RedisProbe struct {
	client    redis.UniversalClient
	ReadWrite bool
}

// NewRedisProbe parses a redis:// URL.
func NewRedisProbe(url string) (*RedisProbe, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 || opts.DialTimeout > redisDialWait {
		opts.DialTimeout = redisDialWait
	}
	return &RedisProbe{client: redis.NewClient(opts)}, nil
}

func (p *RedisProbe) Alive(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	if !p.ReadWrite {
		return nil
	}

	const want = "ok"
	if err := p.client.Set(ctx, redisProbeKey, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	got, err := p.client.Get(ctx, redisProbeKey).Result()
	if err != nil {
		return fmt.Errorf("redis read: %w", err)
	}
	if got != want {
		return fmt.Errorf("redis read: got %q, want %q", got, want)
	}
	if err := p.client.Del(ctx, redisProbeKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (p *RedisProbe) Close() error {
	return p.client.Close()
}
