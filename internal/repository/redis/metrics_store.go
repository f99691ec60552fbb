package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
)

var _ flow.MetricsStore = (*MetricsStore)(nil)

// MetricsStore keeps the latest TickerMetrics snapshot for every scanned ticker
type MetricsStore struct {
	client *redis.Client
}

// NewMetricsStore creates a new metrics store
func NewMetricsStore(client *redis.Client) *MetricsStore {
	return &MetricsStore{client: client}
}

// Save overwrites the snapshot for m.Ticker
func (s *MetricsStore) Save(ctx context.Context, m flow.TickerMetrics, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal metrics: ticker=%s", m.Ticker)
	}

	if err := s.client.Set(ctx, metricsKey(m.Ticker), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save metrics to redis: ticker=%s", m.Ticker)
	}

	return nil
}

// Get returns the stored snapshot or ErrNotFound
func (s *MetricsStore) Get(ctx context.Context, ticker string) (*flow.TickerMetrics, error) {
	data, err := s.client.Get(ctx, metricsKey(ticker)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(errors.ErrNotFound, "metrics not found for ticker=%s", ticker)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get metrics from redis: ticker=%s", ticker)
	}

	var m flow.TickerMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal metrics: ticker=%s", ticker)
	}

	return &m, nil
}

// GetMany loads several snapshots in one round trip. Missing tickers are absent.
func (s *MetricsStore) GetMany(ctx context.Context, tickers []string) (flow.BatchResult, error) {
	out := flow.BatchResult{}
	if len(tickers) == 0 {
		return out, nil
	}

	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = metricsKey(t)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to mget metrics from redis")
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m flow.TickerMetrics
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metrics: ticker=%s", tickers[i])
		}
		out[m.Ticker] = m
	}

	return out, nil
}

func metricsKey(ticker string) string {
	return fmt.Sprintf("flow:metrics:%s", ticker)
}
