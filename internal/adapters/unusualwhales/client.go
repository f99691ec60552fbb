package unusualwhales

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"optionsflow/internal/adapters/ratelimit"
	"optionsflow/internal/adapters/retry"
	"optionsflow/internal/domain/flow"
	"optionsflow/internal/metrics"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.unusualwhales.com"
	userAgent      = "optionsflow/1.0"
	maxErrorBody   = 512
)

// Cache stores raw successful responses
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config contains client configuration
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per HTTP request
	PageLimit  int
	RateLimit  float64 // requests per second
	RateBurst  int
	MaxRetries int
	RetryDelay time.Duration // first backoff delay
	Backoff    float64       // exponential multiplier between retries
	CacheTTL   time.Duration // 0 disables caching
}

// FlowQuery narrows an options flow request
type FlowQuery struct {
	Date  string // YYYY-MM-DD, empty for the current session
	Limit int    // 0 uses the configured page limit
}

// Client fetches options flow from the Unusual Whales REST API
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   *retry.Middleware
	breaker *gobreaker.CircuitBreaker
	cache   Cache
	log     *logger.Logger
}

var _ flow.Fetcher = (*Client)(nil)

// NewClient creates a client. cache may be nil.
func NewClient(cfg Config, cache Cache, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}

	log = log.With("component", "unusual_whales_client")

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	if cfg.Backoff > 0 {
		retryCfg.Multiplier = cfg.Backoff
	}
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: ratelimit.NewLimiter("unusual_whales", cfg.RateLimit, cfg.RateBurst),
		retry:   retry.New(retryCfg),
		breaker: newBreaker("unusual_whales", log),
		cache:   cache,
		log:     log,
	}
}

// newBreaker trips after 3 consecutive upstream failures, or a >5% failure
// rate over at least 20 requests, and probes again after 60s. Auth and
// payload errors say nothing about upstream health and count as successes.
func newBreaker(name string, log *logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, errors.ErrUnauthorized) ||
				errors.Is(err, errors.ErrInvalidResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// FetchEvents returns the latest options flow records for ticker.
// Every failure wraps errors.ErrFetchFailure plus the concrete kind.
func (c *Client) FetchEvents(ctx context.Context, ticker string) ([]flow.RawRecord, error) {
	return c.FetchFlow(ctx, ticker, FlowQuery{})
}

// FetchFlow is FetchEvents with an explicit date / page size
func (c *Client) FetchFlow(ctx context.Context, ticker string, q FlowQuery) ([]flow.RawRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = c.cfg.PageLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if q.Date != "" {
		params.Set("date", q.Date)
	}

	endpoint := fmt.Sprintf("/api/stock/%s/options-flow", url.PathEscape(ticker))
	key := cacheKey(endpoint, params)

	if cached, ok := c.cacheGet(ctx, key); ok {
		records, err := decodeRecords(cached)
		if err == nil {
			return records, nil
		}
		c.log.Warnw("Discarding undecodable cached response", "key", key, "error", err)
	}

	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, errors.Join(errors.ErrFetchFailure, errors.Wrapf(err, "options flow for %s", ticker))
	}

	records, err := decodeRecords(body)
	if err != nil {
		apiErr := &APIError{Kind: KindData, Endpoint: endpoint, Message: "invalid JSON response", Err: err}
		return nil, errors.Join(errors.ErrFetchFailure, apiErr)
	}

	// only payloads that decoded are cached
	c.cacheSet(ctx, key, body)
	return records, nil
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return nil, false
	}

	cached, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		c.log.Warnw("Response cache read failed", "key", key, "error", err)
		return nil, false
	case ok:
		metrics.RecordCacheLookup("hit")
		c.log.Debugw("Cache hit", "key", key)
		return cached, true
	default:
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
}

func (c *Client) cacheSet(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, body, c.cfg.CacheTTL); err != nil {
		c.log.Warnw("Response cache write failed", "key", key, "error", err)
	}
}

// get performs a rate limited, retried and circuit-broken GET
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return retry.Do(ctx, c.retry, func() ([]byte, error) {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, endpoint, params)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, &APIError{Kind: KindUnavailable, Endpoint: endpoint, Message: "circuit open", Err: err}
			}
			return nil, err
		}
		return result.([]byte), nil
	})
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Kind: KindTimeout, Endpoint: endpoint, Message: "rate limiter wait", Err: err}
	}

	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(0)
		return nil, classifyTransportError(endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Endpoint: endpoint, Message: "read body", Err: err}
	}

	c.log.Debugw("Upstream response",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"bytes", len(body),
		"took", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, classifyStatus(endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func classifyTransportError(endpoint string, err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Endpoint: endpoint, Message: "request timeout", Err: err}
	}
	return &APIError{Kind: KindNetwork, Endpoint: endpoint, Message: "network error", Err: err}
}

// decodeRecords accepts {"data": [...]} or a bare array. Numbers stay json.Number.
func decodeRecords(body []byte) ([]flow.RawRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] == '[' {
		var records []flow.RawRecord
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var envelope struct {
		Data []flow.RawRecord `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return []flow.RawRecord{}, nil
	}
	return envelope.Data, nil
}

// cacheKey renders endpoint|k=v with sorted params
func cacheKey(endpoint string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{"uw:" + endpoint}
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	return strings.Join(parts, "|")
}
