package searchcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	TTL      time.Duration
}

// Cache keeps upstream search pages in Redis for TTL.
type Cache struct {
	rc  *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, cfg Config) (*Cache, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return NewWithClient(rc, cfg.TTL), nil
}

func NewWithClient(rc *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rc: rc, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.rc.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return body, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, body []byte) error {
	if err := c.rc.Set(ctx, key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable, for health checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rc.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rc.Close()
}
