package flow

import (
	"context"
	"time"
)

// Fetcher supplies raw flow records for one ticker. Results are neither
// ordered nor deduplicated and may be empty.
type Fetcher interface {
	FetchEvents(ctx context.Context, ticker string) ([]RawRecord, error)
}

// HistoryRepository persists classified events and metric snapshots
type HistoryRepository interface {
	InsertEvents(ctx context.Context, scannedAt time.Time, events []ClassifiedEvent) error
	InsertMetrics(ctx context.Context, scannedAt time.Time, reports []TickerReport) error
	GetMetricsHistory(ctx context.Context, ticker string, since time.Time) ([]TickerMetrics, error)
}

// MetricsStore keeps the latest snapshot per ticker. The caller owns the lifetime via ttl.
type MetricsStore interface {
	Save(ctx context.Context, m TickerMetrics, ttl time.Duration) error
	Get(ctx context.Context, ticker string) (*TickerMetrics, error)
	GetMany(ctx context.Context, tickers []string) (BatchResult, error)
}

// WatchlistSource lists the tickers to scan
type WatchlistSource interface {
	ActiveTickers(ctx context.Context, limit int) ([]string, error)
}
