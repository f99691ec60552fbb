package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/logger"
)

var scannedAt = time.Date(2024, 3, 15, 14, 35, 0, 0, time.UTC)

func classifiedSweep() flow.ClassifiedEvent {
	return flow.ClassifiedEvent{
		Event: flow.TradeEvent{
			ID:             "evt-1",
			Ticker:         "AAPL",
			OptionSymbol:   "AAPL240419C00180000",
			OptionType:     flow.OptionCall,
			Strike:         180,
			PremiumTotal:   612_000,
			AskSidePremium: 600_000,
			BidSidePremium: 12_000,
			Volume:         1200,
			Expiry:         time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC),
			HasSweep:       true,
			ExecutedAt:     time.Date(2024, 3, 15, 14, 31, 7, 0, time.UTC),
		},
		Tags: flow.Tags{flow.TagBigMoney, flow.TagGammaSqueeze},
	}
}

func TestToEventRows(t *testing.T) {
	rows := toEventRows(scannedAt, []flow.ClassifiedEvent{classifiedSweep()})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, scannedAt, row.ScannedAt)
	assert.Equal(t, "AAPL", row.Ticker)
	assert.Equal(t, "call", row.OptionType)
	assert.Equal(t, int64(1200), row.Volume)
	assert.True(t, row.HasSweep)
	assert.Equal(t, []string{"big-money", "gamma-squeeze"}, row.Tags)
}

func TestToMetricRows(t *testing.T) {
	report := flow.TickerReport{
		Metrics: flow.TickerMetrics{
			Ticker:        "SPY",
			GammaExposure: -2500,
			DeltaFlow:     250_000,
			EventCount:    4,
			LastUpdated:   scannedAt,
		},
		CallPremium:  300_000,
		PutPremium:   50_000,
		PutCallRatio: 50_000.0 / 300_000.0,
		Sentiment:    flow.SentimentBullish,
	}

	rows := toMetricRows(scannedAt, []flow.TickerReport{report})
	require.Len(t, rows, 1)
	assert.Equal(t, "SPY", rows[0].Ticker)
	assert.Equal(t, uint32(4), rows[0].EventCount)
	assert.Equal(t, string(flow.SentimentBullish), rows[0].Sentiment)
	assert.InDelta(t, -2500, rows[0].GammaExposure, 1e-9)
}

func TestFlowRepository_InsertBuffers(t *testing.T) {
	repo := NewFlowRepository(nil, FlowRepositoryConfig{
		BatchSize:     100,
		FlushInterval: time.Minute,
		Logger:        logger.NewNop(),
	})
	ctx := context.Background()

	require.NoError(t, repo.InsertEvents(ctx, scannedAt, []flow.ClassifiedEvent{classifiedSweep(), classifiedSweep()}))
	require.NoError(t, repo.InsertMetrics(ctx, scannedAt, []flow.TickerReport{{Metrics: flow.TickerMetrics{Ticker: "AAPL"}}}))
	require.NoError(t, repo.InsertEvents(ctx, scannedAt, nil))

	assert.Equal(t, 2, repo.events.BufferSize())
	assert.Equal(t, 1, repo.metrics.BufferSize())
}
