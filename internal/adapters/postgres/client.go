package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/retry"
	"optionsflow/pkg/errors"
)

const pingTimeout = 3 * time.Second

// Client holds the pooled connection to the watchlist database
type Client struct {
	db *sqlx.DB
}

// NewClient dials Postgres, retrying while the server comes up, and sizes
// the pool from cfg.MaxConns
func NewClient(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := retry.Do(ctx, retry.Connect(), func() (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to postgres at %s:%d", cfg.Host, cfg.Port)
	}

	poolSize := max(cfg.MaxConns, 1)
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(max(1, poolSize/2))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Client{db: db}, nil
}

// DB exposes the pool to repositories
func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Health pings with a short deadline so a hung server fails the probe
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "postgres ping")
	}
	return nil
}
