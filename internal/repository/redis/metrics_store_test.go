package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
)

func sampleMetrics(ticker string) flow.TickerMetrics {
	return flow.TickerMetrics{
		Ticker:        ticker,
		GammaExposure: -5880,
		DeltaFlow:     588_000,
		EventCount:    2,
		LastUpdated:   time.Date(2024, 3, 15, 14, 31, 7, 0, time.UTC),
	}
}

func TestMetricsStore_Save(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewMetricsStore(db)
	ctx := context.Background()

	m := sampleMetrics("AAPL")
	data, err := json.Marshal(m)
	require.NoError(t, err)

	mock.ExpectSet("flow:metrics:AAPL", data, 15*time.Minute).SetVal("OK")
	require.NoError(t, store.Save(ctx, m, 15*time.Minute))

	mock.ExpectSet("flow:metrics:AAPL", data, time.Minute).SetErr(redis.TxFailedErr)
	err = store.Save(ctx, m, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker=AAPL")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsStore_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewMetricsStore(db)
	ctx := context.Background()

	m := sampleMetrics("SPY")
	data, err := json.Marshal(m)
	require.NoError(t, err)

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("flow:metrics:SPY").SetVal(string(data))

		got, err := store.Get(ctx, "SPY")
		require.NoError(t, err)
		assert.Equal(t, m.Ticker, got.Ticker)
		assert.InDelta(t, m.DeltaFlow, got.DeltaFlow, 1e-9)
		assert.True(t, m.LastUpdated.Equal(got.LastUpdated))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("flow:metrics:QQQ").RedisNil()

		got, err := store.Get(ctx, "QQQ")
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		mock.ExpectGet("flow:metrics:TSLA").SetVal("{not json")

		_, err := store.Get(ctx, "TSLA")
		require.Error(t, err)
		assert.False(t, errors.Is(err, errors.ErrNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsStore_GetMany(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewMetricsStore(db)
	ctx := context.Background()

	aapl, err := json.Marshal(sampleMetrics("AAPL"))
	require.NoError(t, err)

	mock.ExpectMGet("flow:metrics:AAPL", "flow:metrics:NVDA").SetVal([]interface{}{string(aapl), nil})

	got, err := store.GetMany(ctx, []string{"AAPL", "NVDA"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, "AAPL")
	assert.NotContains(t, got, "NVDA")

	empty, err := store.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResponseCache(db)
	ctx := context.Background()

	mock.ExpectGet("uw:/api/stock/AAPL/options-flow|limit=100").SetVal(`{"data":[]}`)
	value, ok, err := cache.Get(ctx, "uw:/api/stock/AAPL/options-flow|limit=100")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"data":[]}`, string(value))

	mock.ExpectGet("missing").RedisNil()
	value, ok, err = cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)

	mock.ExpectGet("broken").SetErr(redis.TxFailedErr)
	_, _, err = cache.Get(ctx, "broken")
	assert.Error(t, err)

	mock.ExpectSet("k", []byte("v"), 5*time.Minute).SetVal("OK")
	assert.NoError(t, cache.Set(ctx, "k", []byte("v"), 5*time.Minute))

	assert.NoError(t, mock.ExpectationsWereMet())
}
