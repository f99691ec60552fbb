package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/retry"
	"optionsflow/pkg/errors"
)

const pingTimeout = 3 * time.Second

// Client owns the Redis connection used by the metrics store and response cache
type Client struct {
	rdb *redis.Client
}

// NewClient builds the client and waits until Redis answers PING
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	c := &Client{rdb: rdb}
	if err := retry.Connect().Do(ctx, func() error { return c.Health(ctx) }); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "failed to reach redis at %s", cfg.Addr())
	}

	return c, nil
}

// Client exposes the raw go-redis client to repositories
func (c *Client) Client() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings with a short deadline
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}
