package unusualwhales

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const flowPayload = `{"data":[
	{"ticker":"AAPL","type":"call","total_premium":"612000","total_ask_side_prem":"600000","total_bid_side_prem":"12000","volume":1200,"expiry":"2024-04-19","has_sweep":true,"created_at":"2024-03-15T14:31:07Z"},
	{"ticker":"AAPL","type":"put","total_premium":"80000","total_ask_side_prem":"10000","total_bid_side_prem":"70000","volume":50,"expiry":"2024-03-22"}
]}`

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		APIKey:     "secret-token",
		Timeout:    2 * time.Second,
		PageLimit:  100,
		RateLimit:  0,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Backoff:    1.5,
	}
}

func TestClient_FetchEvents(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(flowPayload))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, logger.NewNop())

	records, err := client.FetchEvents(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/api/stock/AAPL/options-flow", gotReq.URL.Path)
	assert.Equal(t, "100", gotReq.URL.Query().Get("limit"))
	assert.Equal(t, "Bearer secret-token", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "application/json", gotReq.Header.Get("Accept"))

	events, dropped := flow.NormalizeAll(records)
	assert.Zero(t, dropped)
	require.Len(t, events, 2)
	assert.InDelta(t, 612_000, events[0].PremiumTotal, 1e-9)
	assert.Equal(t, int64(1200), events[0].Volume)
	assert.Equal(t, flow.OptionPut, events[1].OptionType)
}

func TestClient_FetchFlowWithDate(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, logger.NewNop())

	records, err := client.FetchFlow(context.Background(), "TSLA", FlowQuery{Date: "2024-03-15", Limit: 25})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "2024-03-15", query.Get("date"))
	assert.Equal(t, "25", query.Get("limit"))
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		wantCalls int32
	}{
		{name: "unauthorized is final", status: http.StatusUnauthorized, body: `{"error":"bad token"}`, sentinel: errors.ErrUnauthorized, wantCalls: 1},
		{name: "rate limited is retried", status: http.StatusTooManyRequests, body: ``, sentinel: errors.ErrRateLimitExceeded, wantCalls: 3},
		{name: "not found is data error", status: http.StatusNotFound, body: `nope`, sentinel: errors.ErrInvalidResponse, wantCalls: 1},
		{name: "bad json", status: http.StatusOK, body: `{"data": [`, sentinel: errors.ErrInvalidResponse, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(testConfig(srv.URL), nil, logger.NewNop())

			_, err := client.FetchEvents(context.Background(), "AAPL")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrFetchFailure))
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.Equal(t, tt.wantCalls, calls.Load())

			var apiErr *APIError
			assert.True(t, errors.As(err, &apiErr))
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(flowPayload))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, logger.NewNop())

	records, err := client.FetchEvents(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0
	client := NewClient(cfg, nil, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchEvents(ctx, "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFetchFailure))
	assert.True(t, errors.Is(err, errors.ErrTimeout), "got %v", err)
}

func TestClient_CachesResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(flowPayload))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	cfg := testConfig(srv.URL)
	cfg.CacheTTL = 5 * time.Minute
	client := NewClient(cfg, cache, logger.NewNop())

	for i := 0; i < 3; i++ {
		records, err := client.FetchEvents(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	}

	assert.Equal(t, int32(1), calls.Load())
	key := "uw:/api/stock/AAPL/options-flow|limit=100"
	assert.Contains(t, cache.data, key)
	assert.Equal(t, 5*time.Minute, cache.ttls[key])
}

func TestClient_DoesNotCacheUndecodableBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"data":[{"ticker":`))
			return
		}
		_, _ = w.Write([]byte(flowPayload))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	cfg := testConfig(srv.URL)
	cfg.CacheTTL = 5 * time.Minute
	client := NewClient(cfg, cache, logger.NewNop())

	_, err := client.FetchEvents(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidResponse))
	assert.Empty(t, cache.data)

	records, err := client.FetchEvents(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, cache.data, 1)
}

func TestClient_RefetchesOnCorruptCacheEntry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(flowPayload))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	key := "uw:/api/stock/AAPL/options-flow|limit=100"
	cache.data[key] = []byte(`not json`)

	cfg := testConfig(srv.URL)
	cfg.CacheTTL = 5 * time.Minute
	client := NewClient(cfg, cache, logger.NewNop())

	records, err := client.FetchEvents(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(1), calls.Load())
	assert.JSONEq(t, flowPayload, string(cache.data[key]))
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0
	client := NewClient(cfg, nil, logger.NewNop())

	for i := 0; i < 3; i++ {
		_, err := client.FetchEvents(context.Background(), "SPY")
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load())

	_, err := client.FetchEvents(context.Background(), "SPY")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach upstream")
}

func TestCacheKey(t *testing.T) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("date", "2024-03-15")

	assert.Equal(t, "uw:/api/stock/AAPL/options-flow|date=2024-03-15|limit=100", cacheKey("/api/stock/AAPL/options-flow", params))
}
