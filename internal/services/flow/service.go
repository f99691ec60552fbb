package flow

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"optionsflow/internal/domain/flow"
	"optionsflow/internal/metrics"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	DefaultMaxConcurrency = 3
	DefaultFetchTimeout   = 30 * time.Second
)

// Config bounds a batch run
type Config struct {
	MaxConcurrency int           // tickers fetched at once
	FetchTimeout   time.Duration // per ticker, independent of the caller context
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source used for classification and aggregation
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs fetch, normalize, classify and aggregate for a set of tickers
// with bounded concurrency. A failing ticker never affects the others.
type Service struct {
	fetcher    flow.Fetcher
	classifier *flow.Classifier
	filter     *flow.SignificanceFilter
	cfg        Config
	now        func() time.Time
	log        *logger.Logger
}

// NewService creates a new flow service
func NewService(
	fetcher flow.Fetcher,
	classifier *flow.Classifier,
	filter *flow.SignificanceFilter,
	cfg Config,
	log *logger.Logger,
	opts ...Option,
) *Service {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	s := &Service{
		fetcher:    fetcher,
		classifier: classifier,
		filter:     filter,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With("service", "flow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeBatch returns metrics for the significant tickers only.
// Tickers that failed or are below both thresholds are absent.
func (s *Service) AnalyzeBatch(ctx context.Context, tickers []string) flow.BatchResult {
	return s.Significant(s.ScanBatch(ctx, tickers))
}

// Significant reduces full reports to the filtered BatchResult
func (s *Service) Significant(reports map[string]flow.TickerReport) flow.BatchResult {
	all := make(flow.BatchResult, len(reports))
	for ticker, r := range reports {
		all[ticker] = r.Metrics
	}

	significant := s.filter.Apply(all)
	metrics.SignificantTickers.Set(float64(len(significant)))

	s.log.Debugw("Significance filter applied",
		"tickers", len(all),
		"significant", len(significant),
	)

	return significant
}

// AnalyzeTickerFlow returns unfiltered metrics for one ticker.
// A failed fetch returns an error wrapping errors.ErrFetchFailure.
func (s *Service) AnalyzeTickerFlow(ctx context.Context, ticker string) (flow.TickerMetrics, error) {
	normalized, err := flow.NormalizeTicker(ticker)
	if err != nil {
		return flow.TickerMetrics{}, err
	}

	report, err := s.scanTicker(ctx, normalized)
	if err != nil {
		return flow.TickerMetrics{}, err
	}
	return report.Metrics, nil
}

// ScanBatch returns the full, unfiltered report for every ticker that
// succeeded. Invalid and duplicate symbols are skipped.
func (s *Service) ScanBatch(ctx context.Context, tickers []string) map[string]flow.TickerReport {
	start := time.Now()

	valid, rejected := flow.NormalizeTickers(tickers)
	for raw, err := range rejected {
		s.log.Warnw("Skipping invalid ticker", "ticker", raw, "error", err)
	}

	slots := make([]*flow.TickerReport, len(valid))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)

	for i, ticker := range valid {
		g.Go(func() error {
			report, err := s.scanTicker(ctx, ticker)
			if err == nil {
				slots[i] = &report
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]flow.TickerReport, len(valid))
	for _, r := range slots {
		if r != nil {
			out[r.Metrics.Ticker] = *r
		}
	}

	s.log.Infow("Flow batch complete",
		"requested", len(tickers),
		"valid", len(valid),
		"succeeded", len(out),
		"failed", len(valid)-len(out),
		"took", time.Since(start),
	)

	return out
}

// scanTicker is one unit of work. Panics are recovered and reported as errors.
func (s *Service) scanTicker(ctx context.Context, ticker string) (report flow.TickerReport, err error) {
	start := time.Now()
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			err = errors.Join(errors.ErrFetchFailure, errors.Wrapf(errors.ErrInternal, "panic while scanning %s: %v", ticker, r))
			report = flow.TickerReport{}
			s.log.ErrorWithContext(errors.WithTicker(ctx, ticker), err, map[string]string{"component": "flow_service"})
		}
		metrics.RecordTickerFetch(time.Since(start), status)
	}()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
	defer cancel()

	records, err := s.fetcher.FetchEvents(fetchCtx, ticker)
	if err != nil {
		status = "error"
		if !errors.Is(err, errors.ErrFetchFailure) {
			err = errors.Join(errors.ErrFetchFailure, err)
		}
		s.log.Warnw("Ticker fetch failed", "ticker", ticker, "error", err)
		return flow.TickerReport{}, err
	}

	events, dropped := flow.NormalizeAll(records)
	if dropped > 0 {
		s.log.Debugw("Dropped malformed records", "ticker", ticker, "dropped", dropped)
	}
	if len(events) == 0 {
		// zero metrics, filtered out downstream
		s.log.Debugw("Ticker has no flow", "ticker", ticker, "reason", errors.ErrEmptyInput)
	}

	now := s.now()
	report = flow.Summarize(ticker, events, func(e flow.TradeEvent) flow.Tags {
		return s.classifier.ClassifyAt(e, now)
	}, now)
	report.Dropped = dropped

	metrics.RecordDropped(dropped)
	metrics.RecordTagCounts(report.TagCounts)

	return report, nil
}
