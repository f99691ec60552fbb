package flow

import (
	"context"
	"sort"
	"time"

	"optionsflow/internal/domain/flow"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const workerName = "flow_scanner"

// Scanner runs a batch and reduces it to the significant tickers
type Scanner interface {
	ScanBatch(ctx context.Context, tickers []string) map[string]flow.TickerReport
	Significant(reports map[string]flow.TickerReport) flow.BatchResult
}

// AlertPublisher announces a significant ticker
type AlertPublisher interface {
	PublishFlowAlert(ctx context.Context, report flow.TickerReport, scannedAt time.Time) error
}

// Config contains scanner settings
type Config struct {
	Interval       time.Duration
	Enabled        bool
	Tickers        []string      // used when the watchlist is unavailable or empty
	WatchlistLimit int           // first N tickers are scanned, 0 for all
	MetricsTTL     time.Duration // lifetime of the latest snapshot in the store
}

// Deps are the scanner collaborators. Everything except Scanner is optional.
type Deps struct {
	Scanner   Scanner
	Watchlist flow.WatchlistSource
	History   flow.HistoryRepository
	Store     flow.MetricsStore
	Alerts    AlertPublisher
}

// FlowScanner refreshes options flow for the watchlist on a fixed interval.
// Each run persists every report, stores the latest metrics per ticker and
// publishes an alert for each ticker that passes the significance filter.
type FlowScanner struct {
	*workers.BaseWorker
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewFlowScanner creates a new flow scanner worker
func NewFlowScanner(deps Deps, cfg Config, log *logger.Logger) *FlowScanner {
	return &FlowScanner{
		BaseWorker: workers.NewBaseWorker(workerName, cfg.Interval, cfg.Enabled, log),
		deps:       deps,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run executes one scan
func (fs *FlowScanner) Run(ctx context.Context) error {
	scannedAt := fs.now().UTC()

	tickers := fs.resolveTickers(ctx)
	if len(tickers) == 0 {
		fs.Log().Debug("No tickers to scan")
		return nil
	}

	reports := fs.deps.Scanner.ScanBatch(ctx, tickers)
	if len(reports) == 0 {
		return errors.Wrapf(errors.ErrFetchFailure, "all %d tickers failed", len(tickers))
	}

	ordered := sortedReports(reports)

	fs.persist(ctx, scannedAt, ordered)
	fs.store(ctx, ordered)

	significant := fs.deps.Scanner.Significant(reports)
	published := fs.publish(ctx, scannedAt, ordered, significant)

	fs.Log().Infow("Flow scan complete",
		"tickers", len(tickers),
		"scanned", len(reports),
		"significant", len(significant),
		"alerts", published,
		"took", time.Since(scannedAt),
	)

	return nil
}

// resolveTickers prefers the watchlist and falls back to the configured list
func (fs *FlowScanner) resolveTickers(ctx context.Context) []string {
	tickers := fs.cfg.Tickers

	if fs.deps.Watchlist != nil {
		active, err := fs.deps.Watchlist.ActiveTickers(ctx, fs.cfg.WatchlistLimit)
		switch {
		case err != nil:
			fs.Log().Warnw("Watchlist unavailable, using configured tickers", "error", err)
		case len(active) == 0:
			fs.Log().Debug("Watchlist empty, using configured tickers")
		default:
			tickers = active
		}
	}

	if fs.cfg.WatchlistLimit > 0 && len(tickers) > fs.cfg.WatchlistLimit {
		tickers = tickers[:fs.cfg.WatchlistLimit]
	}
	return tickers
}

func (fs *FlowScanner) persist(ctx context.Context, scannedAt time.Time, reports []flow.TickerReport) {
	if fs.deps.History == nil {
		return
	}

	var tagged []flow.ClassifiedEvent
	for _, r := range reports {
		tagged = append(tagged, r.Tagged...)
	}

	if err := fs.deps.History.InsertEvents(ctx, scannedAt, tagged); err != nil {
		fs.Log().Warnw("Failed to persist flow events", "events", len(tagged), "error", err)
	}
	if err := fs.deps.History.InsertMetrics(ctx, scannedAt, reports); err != nil {
		fs.Log().Warnw("Failed to persist flow metrics", "tickers", len(reports), "error", err)
	}
}

func (fs *FlowScanner) store(ctx context.Context, reports []flow.TickerReport) {
	if fs.deps.Store == nil {
		return
	}

	for _, r := range reports {
		if err := fs.deps.Store.Save(ctx, r.Metrics, fs.cfg.MetricsTTL); err != nil {
			fs.Log().Warnw("Failed to store latest metrics", "ticker", r.Metrics.Ticker, "error", err)
		}
	}
}

func (fs *FlowScanner) publish(ctx context.Context, scannedAt time.Time, reports []flow.TickerReport, significant flow.BatchResult) int {
	if fs.deps.Alerts == nil {
		return 0
	}

	published := 0
	for _, r := range reports {
		if _, ok := significant[r.Metrics.Ticker]; !ok {
			continue
		}
		if err := fs.deps.Alerts.PublishFlowAlert(ctx, r, scannedAt); err != nil {
			fs.Log().Warnw("Failed to publish flow alert", "ticker", r.Metrics.Ticker, "error", err)
			continue
		}
		published++
	}
	return published
}

func sortedReports(reports map[string]flow.TickerReport) []flow.TickerReport {
	out := make([]flow.TickerReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metrics.Ticker < out[j].Metrics.Ticker
	})
	return out
}
