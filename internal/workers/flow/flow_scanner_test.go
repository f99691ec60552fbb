package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) ScanBatch(ctx context.Context, tickers []string) map[string]flow.TickerReport {
	args := m.Called(ctx, tickers)
	return args.Get(0).(map[string]flow.TickerReport)
}

func (m *MockScanner) Significant(reports map[string]flow.TickerReport) flow.BatchResult {
	args := m.Called(reports)
	return args.Get(0).(flow.BatchResult)
}

type MockWatchlist struct {
	mock.Mock
}

func (m *MockWatchlist) ActiveTickers(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) InsertEvents(ctx context.Context, scannedAt time.Time, events []flow.ClassifiedEvent) error {
	return m.Called(ctx, scannedAt, events).Error(0)
}

func (m *MockHistory) InsertMetrics(ctx context.Context, scannedAt time.Time, reports []flow.TickerReport) error {
	return m.Called(ctx, scannedAt, reports).Error(0)
}

func (m *MockHistory) GetMetricsHistory(ctx context.Context, ticker string, since time.Time) ([]flow.TickerMetrics, error) {
	args := m.Called(ctx, ticker, since)
	return args.Get(0).([]flow.TickerMetrics), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, metrics flow.TickerMetrics, ttl time.Duration) error {
	return m.Called(ctx, metrics, ttl).Error(0)
}

func (m *MockStore) Get(ctx context.Context, ticker string) (*flow.TickerMetrics, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.TickerMetrics), args.Error(1)
}

func (m *MockStore) GetMany(ctx context.Context, tickers []string) (flow.BatchResult, error) {
	args := m.Called(ctx, tickers)
	return args.Get(0).(flow.BatchResult), args.Error(1)
}

type MockAlerts struct {
	mock.Mock
}

func (m *MockAlerts) PublishFlowAlert(ctx context.Context, report flow.TickerReport, scannedAt time.Time) error {
	return m.Called(ctx, report, scannedAt).Error(0)
}

var scanTime = time.Date(2024, 3, 15, 14, 35, 0, 0, time.UTC)

func testReports() map[string]flow.TickerReport {
	aaplTrade := flow.ClassifiedEvent{
		Event: flow.TradeEvent{Ticker: "AAPL", OptionType: flow.OptionCall, PremiumTotal: 600_000, AskSidePremium: 600_000},
		Tags:  flow.Tags{flow.TagBigMoney},
	}
	return map[string]flow.TickerReport{
		"AAPL": {
			Metrics: flow.TickerMetrics{Ticker: "AAPL", GammaExposure: -6_000, DeltaFlow: 600_000, EventCount: 1},
			Tagged:  []flow.ClassifiedEvent{aaplTrade},
		},
		"QQQ": {
			Metrics: flow.TickerMetrics{Ticker: "QQQ", GammaExposure: -100, DeltaFlow: 10_000, EventCount: 1},
		},
	}
}

func newTestScanner(deps Deps, cfg Config) *FlowScanner {
	cfg.Interval = time.Minute
	cfg.Enabled = true
	fs := NewFlowScanner(deps, cfg, logger.NewNop())
	fs.now = func() time.Time { return scanTime }
	return fs
}

func TestFlowScanner_Run(t *testing.T) {
	ctx := context.Background()
	reports := testReports()
	significant := flow.BatchResult{"AAPL": reports["AAPL"].Metrics}

	scanner := new(MockScanner)
	watchlist := new(MockWatchlist)
	history := new(MockHistory)
	store := new(MockStore)
	alerts := new(MockAlerts)

	watchlist.On("ActiveTickers", ctx, 5).Return([]string{"QQQ", "AAPL"}, nil)
	scanner.On("ScanBatch", ctx, []string{"QQQ", "AAPL"}).Return(reports)
	scanner.On("Significant", reports).Return(significant)

	history.On("InsertEvents", ctx, scanTime, reports["AAPL"].Tagged).Return(nil).Once()
	history.On("InsertMetrics", ctx, scanTime, mock.MatchedBy(func(rs []flow.TickerReport) bool {
		return len(rs) == 2 && rs[0].Metrics.Ticker == "AAPL" && rs[1].Metrics.Ticker == "QQQ"
	})).Return(nil).Once()

	store.On("Save", ctx, reports["AAPL"].Metrics, 15*time.Minute).Return(nil).Once()
	store.On("Save", ctx, reports["QQQ"].Metrics, 15*time.Minute).Return(nil).Once()

	alerts.On("PublishFlowAlert", ctx, reports["AAPL"], scanTime).Return(nil).Once()

	fs := newTestScanner(Deps{
		Scanner:   scanner,
		Watchlist: watchlist,
		History:   history,
		Store:     store,
		Alerts:    alerts,
	}, Config{
		Tickers:        []string{"SPY"},
		WatchlistLimit: 5,
		MetricsTTL:     15 * time.Minute,
	})

	require.NoError(t, fs.Run(ctx))

	scanner.AssertExpectations(t)
	watchlist.AssertExpectations(t)
	history.AssertExpectations(t)
	store.AssertExpectations(t)
	alerts.AssertExpectations(t)
	alerts.AssertNotCalled(t, "PublishFlowAlert", mock.Anything, reports["QQQ"], mock.Anything)
}

func TestFlowScanner_FallsBackToConfiguredTickers(t *testing.T) {
	tests := []struct {
		name      string
		watchlist []string
		err       error
	}{
		{name: "watchlist error", err: errors.New("connection refused")},
		{name: "watchlist empty", watchlist: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			reports := testReports()

			watchlist := new(MockWatchlist)
			if tt.err != nil {
				watchlist.On("ActiveTickers", ctx, 2).Return(nil, tt.err)
			} else {
				watchlist.On("ActiveTickers", ctx, 2).Return(tt.watchlist, nil)
			}

			scanner := new(MockScanner)
			scanner.On("ScanBatch", ctx, []string{"SPY", "QQQ"}).Return(reports)
			scanner.On("Significant", reports).Return(flow.BatchResult{})

			fs := newTestScanner(Deps{Scanner: scanner, Watchlist: watchlist}, Config{
				Tickers:        []string{"SPY", "QQQ", "AAPL", "TSLA", "NVDA"},
				WatchlistLimit: 2,
			})

			require.NoError(t, fs.Run(ctx))
			scanner.AssertExpectations(t)
		})
	}
}

func TestFlowScanner_AllTickersFailed(t *testing.T) {
	ctx := context.Background()

	scanner := new(MockScanner)
	scanner.On("ScanBatch", ctx, []string{"SPY"}).Return(map[string]flow.TickerReport{})

	history := new(MockHistory)
	store := new(MockStore)

	fs := newTestScanner(Deps{Scanner: scanner, History: history, Store: store}, Config{Tickers: []string{"SPY"}})

	err := fs.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFetchFailure))

	history.AssertNotCalled(t, "InsertEvents", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	scanner.AssertNotCalled(t, "Significant", mock.Anything)
}

func TestFlowScanner_SideEffectFailuresDoNotFailRun(t *testing.T) {
	ctx := context.Background()
	reports := testReports()

	scanner := new(MockScanner)
	scanner.On("ScanBatch", ctx, []string{"AAPL", "QQQ"}).Return(reports)
	scanner.On("Significant", reports).Return(flow.BatchResult{"AAPL": reports["AAPL"].Metrics})

	history := new(MockHistory)
	history.On("InsertEvents", ctx, scanTime, mock.Anything).Return(errors.New("clickhouse down"))
	history.On("InsertMetrics", ctx, scanTime, mock.Anything).Return(errors.New("clickhouse down"))

	store := new(MockStore)
	store.On("Save", ctx, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	alerts := new(MockAlerts)
	alerts.On("PublishFlowAlert", ctx, mock.Anything, scanTime).Return(errors.New("kafka down"))

	fs := newTestScanner(Deps{Scanner: scanner, History: history, Store: store, Alerts: alerts}, Config{
		Tickers: []string{"AAPL", "QQQ"},
	})

	require.NoError(t, fs.Run(ctx))
	store.AssertNumberOfCalls(t, "Save", 2)
	alerts.AssertNumberOfCalls(t, "PublishFlowAlert", 1)
}

func TestFlowScanner_NoTickers(t *testing.T) {
	scanner := new(MockScanner)
	fs := newTestScanner(Deps{Scanner: scanner}, Config{})

	require.NoError(t, fs.Run(context.Background()))
	scanner.AssertNotCalled(t, "ScanBatch", mock.Anything, mock.Anything)
}
