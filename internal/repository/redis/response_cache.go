package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"optionsflow/pkg/errors"
)

// ResponseCache stores raw upstream responses under caller-chosen keys
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a new response cache
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get reports a miss as ok=false with no error
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read cache key %s", key)
	}
	return data, true, nil
}

func (c *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to write cache key %s", key)
	}
	return nil
}
