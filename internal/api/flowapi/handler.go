package flowapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	maxBatchTickers = 50
	defaultHistory  = 24 * time.Hour
	maxHistory      = 30 * 24 * time.Hour
)

// Analyzer runs live flow analysis
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, tickers []string) flow.BatchResult
	AnalyzeTickerFlow(ctx context.Context, ticker string) (flow.TickerMetrics, error)
}

// LatestReader reads the last stored snapshots
type LatestReader interface {
	Get(ctx context.Context, ticker string) (*flow.TickerMetrics, error)
	GetMany(ctx context.Context, tickers []string) (flow.BatchResult, error)
}

// HistoryReader reads stored snapshots
type HistoryReader interface {
	GetMetricsHistory(ctx context.Context, ticker string, since time.Time) ([]flow.TickerMetrics, error)
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler serves the flow endpoints. latest and history may be nil; their
// routes then answer 404.
type Handler struct {
	analyzer Analyzer
	latest   LatestReader
	history  HistoryReader
	log      *logger.Logger
	now      func() time.Time
}

// NewHandler creates a flow API handler
func NewHandler(analyzer Analyzer, latest LatestReader, history HistoryReader, log *logger.Logger) *Handler {
	return &Handler{
		analyzer: analyzer,
		latest:   latest,
		history:  history,
		log:      log.With("component", "flow_api"),
		now:      time.Now,
	}
}

// Routes mounts the handler under r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleBatch)
	r.Get("/latest", h.handleLatestBatch)
	r.Get("/{ticker}", h.handleTicker)
	r.Get("/{ticker}/latest", h.handleLatest)
	r.Get("/{ticker}/history", h.handleHistory)
}

// handleBatch answers GET ?tickers=A,B with the significant tickers only
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tickers")
	if strings.TrimSpace(raw) == "" {
		h.sendError(w, http.StatusBadRequest, "missing_parameter", "tickers parameter is required")
		return
	}

	tickers := strings.Split(raw, ",")
	if len(tickers) > maxBatchTickers {
		h.sendError(w, http.StatusBadRequest, "too_many_tickers", "at most 50 tickers per request")
		return
	}

	result := h.analyzer.AnalyzeBatch(r.Context(), tickers)
	writeJSON(w, http.StatusOK, result)
}

// handleLatestBatch answers GET /latest?tickers=A,B from stored snapshots.
// Tickers without a snapshot are absent from the response.
func (h *Handler) handleLatestBatch(w http.ResponseWriter, r *http.Request) {
	if h.latest == nil {
		h.sendError(w, http.StatusNotFound, "not_configured", "metrics store is disabled")
		return
	}

	raw := r.URL.Query().Get("tickers")
	if strings.TrimSpace(raw) == "" {
		h.sendError(w, http.StatusBadRequest, "missing_parameter", "tickers parameter is required")
		return
	}

	requested := strings.Split(raw, ",")
	if len(requested) > maxBatchTickers {
		h.sendError(w, http.StatusBadRequest, "too_many_tickers", "at most 50 tickers per request")
		return
	}

	tickers, rejected := flow.NormalizeTickers(requested)
	for symbol, err := range rejected {
		h.log.Debugw("Skipping invalid ticker", "ticker", symbol, "error", err)
	}
	if len(tickers) == 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_ticker", "no valid tickers in request")
		return
	}

	result, err := h.latest.GetMany(r.Context(), tickers)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTicker(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.analyzer.AnalyzeTickerFlow(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	if h.latest == nil {
		h.sendError(w, http.StatusNotFound, "not_configured", "metrics store is disabled")
		return
	}

	ticker, err := flow.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	metrics, err := h.latest.Get(r.Context(), ticker)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleHistory answers GET ?window=6h with snapshots newer than now-window
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.sendError(w, http.StatusNotFound, "not_configured", "flow history is disabled")
		return
	}

	ticker, err := flow.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	window := defaultHistory
	if v := r.URL.Query().Get("window"); v != "" {
		window, err = time.ParseDuration(v)
		if err != nil || window <= 0 || window > maxHistory {
			h.sendError(w, http.StatusBadRequest, "invalid_parameter", "window must be a positive duration up to 720h")
			return
		}
	}

	snapshots, err := h.history.GetMetricsHistory(r.Context(), ticker, h.now().Add(-window))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []flow.TickerMetrics{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// sendDomainError maps error kinds onto HTTP statuses
func (h *Handler) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidTicker):
		h.sendError(w, http.StatusBadRequest, "invalid_ticker", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errors.ErrRateLimitExceeded):
		h.sendError(w, http.StatusTooManyRequests, "upstream_rate_limited", err.Error())
	case errors.Is(err, errors.ErrTimeout):
		h.sendError(w, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
	case errors.Is(err, errors.ErrFetchFailure):
		h.sendError(w, http.StatusBadGateway, "upstream_failure", err.Error())
	default:
		h.log.Errorw("Flow request failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
