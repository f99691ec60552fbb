package metrics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"optionsflow/pkg/logger"
)

const (
	collectTimeout       = 5 * time.Second
	latestMetricsPattern = "flow:metrics:*"
	scanBatch            = 100
)

// StoreCollector reports storage gauges at scrape time.
// postgres and clickhouse may be nil when those stores are disabled.
type StoreCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn
	redis      *redis.Client

	activeTickers *prometheus.Desc
	storedEvents  *prometheus.Desc
	cachedMetrics *prometheus.Desc
}

// NewStoreCollector creates a new storage collector
func NewStoreCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn, redis *redis.Client) *StoreCollector {
	return &StoreCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,
		redis:      redis,

		activeTickers: prometheus.NewDesc(
			"optionsflow_watchlist_active_tickers",
			"Active tickers in flow_watchlist",
			nil, nil,
		),
		storedEvents: prometheus.NewDesc(
			"optionsflow_stored_events_24h",
			"Classified flow events persisted in the last 24h",
			nil, nil,
		),
		cachedMetrics: prometheus.NewDesc(
			"optionsflow_cached_ticker_metrics",
			"Latest ticker metrics currently cached in Redis",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeTickers
	ch <- c.storedEvents
	ch <- c.cachedMetrics
}

// Collect implements prometheus.Collector. A failing store is skipped.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	c.collectWatchlist(ctx, ch)
	c.collectStoredEvents(ctx, ch)
	c.collectCachedMetrics(ctx, ch)
}

func (c *StoreCollector) collectWatchlist(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.postgres == nil {
		return
	}

	var count int
	err := c.postgres.GetContext(ctx, &count, "SELECT COUNT(*) FROM flow_watchlist WHERE is_active")
	if err != nil {
		c.log.Errorw("Failed to collect watchlist size", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.activeTickers, prometheus.GaugeValue, float64(count))
}

func (c *StoreCollector) collectStoredEvents(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	var count uint64
	err := c.clickhouse.QueryRow(ctx, `
		SELECT count()
		FROM options_flow_events
		WHERE scanned_at > now() - INTERVAL 24 HOUR
	`).Scan(&count)
	if err != nil {
		c.log.Errorw("Failed to collect stored event count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.storedEvents, prometheus.GaugeValue, float64(count))
}

func (c *StoreCollector) collectCachedMetrics(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.redis == nil {
		return
	}

	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, latestMetricsPattern, scanBatch).Result()
		if err != nil {
			c.log.Errorw("Failed to collect cached metrics count", "error", err)
			return
		}
		total += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}

	ch <- prometheus.MustNewConstMetric(c.cachedMetrics, prometheus.GaugeValue, float64(total))
}

// RegisterStoreCollector registers the collector with the default registry
func RegisterStoreCollector(collector *StoreCollector) {
	prometheus.MustRegister(collector)
}
