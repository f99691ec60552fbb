package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optionsflow/internal/domain/flow"
	chbatch "optionsflow/pkg/clickhouse"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	eventsTable  = "options_flow_events"
	metricsTable = "flow_ticker_metrics"
)

var _ flow.HistoryRepository = (*FlowRepository)(nil)

// EventRow is one classified trade as stored in options_flow_events
type EventRow struct {
	ScannedAt       time.Time
	ID              string
	Ticker          string
	OptionSymbol    string
	OptionType      string
	Strike          float64
	PremiumTotal    float64
	AskSidePremium  float64
	BidSidePremium  float64
	Volume          int64
	UnderlyingPrice float64
	Expiry          time.Time
	HasSweep        bool
	HasFloor        bool
	ExecutedAt      time.Time
	Tags            []string
}

// MetricRow is one ticker snapshot as stored in flow_ticker_metrics
type MetricRow struct {
	ScannedAt     time.Time
	Ticker        string
	GammaExposure float64
	DeltaFlow     float64
	EventCount    uint32
	LastUpdated   time.Time
	CallPremium   float64
	PutPremium    float64
	PutCallRatio  float64
	Sentiment     string
}

// FlowRepositoryConfig sizes the insert buffers
type FlowRepositoryConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Logger        *logger.Logger
}

// FlowRepository stores flow history in ClickHouse. Inserts are buffered and
// written in batches; call Start before use and Stop on shutdown.
type FlowRepository struct {
	conn    driver.Conn
	events  *chbatch.BatchWriter[EventRow]
	metrics *chbatch.BatchWriter[MetricRow]
}

// NewFlowRepository creates a new flow history repository
func NewFlowRepository(conn driver.Conn, cfg FlowRepositoryConfig) *FlowRepository {
	r := &FlowRepository{conn: conn}

	r.events = chbatch.NewBatchWriter(chbatch.BatchWriterConfig[EventRow]{
		FlushFunc:    r.writeEvents,
		TableName:    eventsTable,
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
		Logger:       cfg.Logger,
	})
	r.metrics = chbatch.NewBatchWriter(chbatch.BatchWriterConfig[MetricRow]{
		FlushFunc:    r.writeMetrics,
		TableName:    metricsTable,
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
		Logger:       cfg.Logger,
	})

	return r
}

// Start launches the periodic flush loops
func (r *FlowRepository) Start(ctx context.Context) {
	r.events.Start(ctx)
	r.metrics.Start(ctx)
}

// Stop flushes pending rows
func (r *FlowRepository) Stop(ctx context.Context) error {
	eventsErr := r.events.Stop(ctx)
	if err := r.metrics.Stop(ctx); err != nil {
		return errors.Wrap(err, "stop metrics writer")
	}
	if eventsErr != nil {
		return errors.Wrap(eventsErr, "stop events writer")
	}
	return nil
}

// InsertEvents buffers classified events for the next flush
func (r *FlowRepository) InsertEvents(ctx context.Context, scannedAt time.Time, events []flow.ClassifiedEvent) error {
	if err := r.events.Add(ctx, toEventRows(scannedAt, events)...); err != nil {
		return errors.Wrap(err, "insert flow events")
	}
	return nil
}

// InsertMetrics buffers ticker snapshots for the next flush
func (r *FlowRepository) InsertMetrics(ctx context.Context, scannedAt time.Time, reports []flow.TickerReport) error {
	if err := r.metrics.Add(ctx, toMetricRows(scannedAt, reports)...); err != nil {
		return errors.Wrap(err, "insert flow metrics")
	}
	return nil
}

// GetMetricsHistory returns snapshots for ticker newest first
func (r *FlowRepository) GetMetricsHistory(ctx context.Context, ticker string, since time.Time) ([]flow.TickerMetrics, error) {
	query := `
		SELECT ticker, gamma_exposure, delta_flow, event_count, last_updated
		FROM flow_ticker_metrics
		WHERE ticker = ? AND scanned_at >= ?
		ORDER BY scanned_at DESC
		LIMIT 1000
	`

	rows, err := r.conn.Query(ctx, query, ticker, since)
	if err != nil {
		return nil, errors.Wrap(err, "query flow metrics history")
	}
	defer rows.Close()

	var history []flow.TickerMetrics
	for rows.Next() {
		var (
			m     flow.TickerMetrics
			count uint32
		)
		if err := rows.Scan(&m.Ticker, &m.GammaExposure, &m.DeltaFlow, &count, &m.LastUpdated); err != nil {
			return nil, errors.Wrap(err, "scan flow metrics")
		}
		m.EventCount = int(count)
		history = append(history, m)
	}

	return history, rows.Err()
}

func (r *FlowRepository) writeEvents(ctx context.Context, rows []EventRow) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO options_flow_events (
			scanned_at, id, ticker, option_symbol, option_type, strike,
			premium_total, ask_side_premium, bid_side_premium, volume,
			underlying_price, expiry, has_sweep, has_floor, executed_at, tags
		)`)
	if err != nil {
		return errors.Wrap(err, "prepare flow events batch")
	}

	for _, row := range rows {
		if err := batch.Append(
			row.ScannedAt, row.ID, row.Ticker, row.OptionSymbol, row.OptionType, row.Strike,
			row.PremiumTotal, row.AskSidePremium, row.BidSidePremium, row.Volume,
			row.UnderlyingPrice, row.Expiry, row.HasSweep, row.HasFloor, row.ExecutedAt, row.Tags,
		); err != nil {
			return errors.Wrap(err, "append flow event")
		}
	}

	return batch.Send()
}

func (r *FlowRepository) writeMetrics(ctx context.Context, rows []MetricRow) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO flow_ticker_metrics (
			scanned_at, ticker, gamma_exposure, delta_flow, event_count, last_updated,
			call_premium, put_premium, put_call_ratio, sentiment
		)`)
	if err != nil {
		return errors.Wrap(err, "prepare flow metrics batch")
	}

	for _, row := range rows {
		if err := batch.Append(
			row.ScannedAt, row.Ticker, row.GammaExposure, row.DeltaFlow, row.EventCount, row.LastUpdated,
			row.CallPremium, row.PutPremium, row.PutCallRatio, row.Sentiment,
		); err != nil {
			return errors.Wrap(err, "append flow metrics")
		}
	}

	return batch.Send()
}

func toEventRows(scannedAt time.Time, events []flow.ClassifiedEvent) []EventRow {
	rows := make([]EventRow, 0, len(events))
	for _, ce := range events {
		e := ce.Event
		rows = append(rows, EventRow{
			ScannedAt:       scannedAt.UTC(),
			ID:              e.ID,
			Ticker:          e.Ticker,
			OptionSymbol:    e.OptionSymbol,
			OptionType:      string(e.OptionType),
			Strike:          e.Strike,
			PremiumTotal:    e.PremiumTotal,
			AskSidePremium:  e.AskSidePremium,
			BidSidePremium:  e.BidSidePremium,
			Volume:          e.Volume,
			UnderlyingPrice: e.UnderlyingPrice,
			Expiry:          e.Expiry.UTC(),
			HasSweep:        e.HasSweep,
			HasFloor:        e.HasFloor,
			ExecutedAt:      e.ExecutedAt.UTC(),
			Tags:            ce.Tags.Strings(),
		})
	}
	return rows
}

func toMetricRows(scannedAt time.Time, reports []flow.TickerReport) []MetricRow {
	rows := make([]MetricRow, 0, len(reports))
	for _, rep := range reports {
		rows = append(rows, MetricRow{
			ScannedAt:     scannedAt.UTC(),
			Ticker:        rep.Metrics.Ticker,
			GammaExposure: rep.Metrics.GammaExposure,
			DeltaFlow:     rep.Metrics.DeltaFlow,
			EventCount:    uint32(rep.Metrics.EventCount),
			LastUpdated:   rep.Metrics.LastUpdated.UTC(),
			CallPremium:   rep.CallPremium,
			PutPremium:    rep.PutPremium,
			PutCallRatio:  rep.PutCallRatio,
			Sentiment:     string(rep.Sentiment),
		})
	}
	return rows
}
