package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionsflow_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optionsflow_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Flow pipeline metrics
	TickerFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_ticker_fetches_total",
			Help: "Per-ticker fetch outcomes inside a batch",
		},
		[]string{"status"}, // status: success|error|panic
	)

	TickerFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optionsflow_ticker_fetch_duration_seconds",
			Help:    "Duration of one ticker fetch including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	DroppedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optionsflow_dropped_records_total",
			Help: "Upstream records skipped as malformed",
		},
	)

	PatternMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_pattern_matches_total",
			Help: "Classified events per pattern tag",
		},
		[]string{"tag"},
	)

	SignificantTickers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optionsflow_significant_tickers",
			Help: "Tickers that passed the significance filter in the last batch",
		},
	)

	// Upstream metrics
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_upstream_requests_total",
			Help: "Unusual Whales HTTP requests by status code",
		},
		[]string{"code"}, // 0 when no response was received
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_cache_lookups_total",
			Help: "Upstream response cache lookups",
		},
		[]string{"result"}, // result: hit|miss|error
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optionsflow_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	// Alert metrics
	AlertsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_alerts_published_total",
			Help: "Flow alerts written to Kafka",
		},
		[]string{"status"}, // status: success|error
	)

	AlertsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_alerts_delivered_total",
			Help: "Flow alert notifications sent to Telegram",
		},
		[]string{"status"}, // status: success|error
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionsflow_http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionsflow_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WorkerExecutions,
			WorkerDuration,
			WorkerLastRun,

			TickerFetches,
			TickerFetchDuration,
			DroppedRecords,
			PatternMatches,
			SignificantTickers,

			UpstreamRequests,
			CacheLookups,
			CircuitBreakerState,

			AlertsPublished,
			AlertsDelivered,

			HTTPRequests,
			HTTPDuration,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, statusLabel(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordTickerFetch records one ticker unit of a batch
func RecordTickerFetch(duration time.Duration, status string) {
	TickerFetches.WithLabelValues(status).Inc()
	TickerFetchDuration.Observe(duration.Seconds())
}

// RecordDropped counts malformed records
func RecordDropped(n int) {
	if n > 0 {
		DroppedRecords.Add(float64(n))
	}
}

// RecordTagCounts adds a ticker's per-tag counts
func RecordTagCounts[K ~string](counts map[K]int) {
	for tag, n := range counts {
		PatternMatches.WithLabelValues(string(tag)).Add(float64(n))
	}
}

// RecordUpstreamRequest records an upstream HTTP status (0 for transport failures)
func RecordUpstreamRequest(code int) {
	UpstreamRequests.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordCacheLookup records a response cache lookup
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordAlertPublished records a Kafka alert publish
func RecordAlertPublished(err error) {
	AlertsPublished.WithLabelValues(statusLabel(err)).Inc()
}

// RecordAlertDelivered records a Telegram notification
func RecordAlertDelivered(err error) {
	AlertsDelivered.WithLabelValues(statusLabel(err)).Inc()
}

// RecordHTTPRequest records an API request
func RecordHTTPRequest(route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
