package clickhouse

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/retry"
	"optionsflow/pkg/errors"
)

const pingTimeout = 3 * time.Second

// Client owns the native-protocol connection for flow history
type Client struct {
	conn driver.Conn
}

// NewClient opens an LZ4-compressed connection and waits for the server
// to answer a ping
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid clickhouse options")
	}

	c := &Client{conn: conn}
	if err := retry.Connect().Do(ctx, func() error { return c.Health(ctx) }); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to reach clickhouse at %s", addr)
	}

	return c, nil
}

// Conn exposes the driver connection to repositories
func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings with a short deadline
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.conn.Ping(ctx); err != nil {
		return errors.Wrap(err, "clickhouse ping")
	}
	return nil
}
