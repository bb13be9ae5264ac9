package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mintpass/mintpass-go/internal/config"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

func NewClient(cfg *config.Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CacheEvent stores a serialized event payload for read-side caching.
func (c *Client) CacheEvent(ctx context.Context, eventID uint, payload []byte, ttl time.Duration) error {
	key := fmt.Sprintf("event:%d", eventID)
	return c.rdb.Set(ctx, key, payload, ttl).Err()
}

// GetCachedEvent returns the cached payload, or redis.Nil via error on a miss.
func (c *Client) GetCachedEvent(ctx context.Context, eventID uint) ([]byte, error) {
	key := fmt.Sprintf("event:%d", eventID)
	return c.rdb.Get(ctx, key).Bytes()
}

// InvalidateEvent drops the cached payload after a write.
func (c *Client) InvalidateEvent(ctx context.Context, eventID uint) error {
	key := fmt.Sprintf("event:%d", eventID)
	return c.rdb.Del(ctx, key).Err()
}

// IsCacheMiss reports whether err is a cache miss rather than a real failure.
func IsCacheMiss(err error) bool {
	return err == redis.Nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
