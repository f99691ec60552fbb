package workers

import (
	"context"
	"sync"
	"time"

	"optionsflow/pkg/logger"
)

// Worker is a periodic job. The scheduler calls Run once at start and
// then every Interval().
type Worker interface {
	Name() string
	Run(ctx context.Context) error
	Interval() time.Duration
	Enabled() bool
}

// WorkerWithHealth is a Worker that keeps run statistics
type WorkerWithHealth interface {
	Worker
	Health() WorkerHealth
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
}

// WorkerHealth is the /workers view of one worker
type WorkerHealth struct {
	Enabled           bool          `json:"enabled"`
	Interval          string        `json:"interval"`
	LastRun           time.Time     `json:"last_run"`
	LastSuccess       time.Time     `json:"last_success"`
	LastDuration      time.Duration `json:"last_duration_ns"`
	LastError         string        `json:"last_error,omitempty"`
	RunCount          int64         `json:"run_count"`
	ErrorCount        int64         `json:"error_count"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
}

// BaseWorker carries the name, schedule and run statistics shared by all workers
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	mu    sync.RWMutex
	stats WorkerHealth
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool, log *logger.Logger) *BaseWorker {
	if log == nil {
		log = logger.Get()
	}
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      log.With("worker", name),
	}
}

func (w *BaseWorker) Name() string            { return w.name }
func (w *BaseWorker) Interval() time.Duration { return w.interval }
func (w *BaseWorker) Enabled() bool           { return w.enabled }
func (w *BaseWorker) Log() *logger.Logger     { return w.log }

// Health returns a snapshot of the run statistics
func (w *BaseWorker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()

	h := w.stats
	h.Enabled = w.enabled
	h.Interval = w.interval.String()
	return h
}

// RecordRun marks a successful iteration
func (w *BaseWorker) RecordRun(duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.stats.LastRun = now
	w.stats.LastSuccess = now
	w.stats.LastDuration = duration
	w.stats.LastError = ""
	w.stats.RunCount++
	w.stats.ConsecutiveErrors = 0
}

// RecordError marks a failed iteration
func (w *BaseWorker) RecordError(err error, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastRun = time.Now()
	w.stats.LastDuration = duration
	w.stats.RunCount++
	w.stats.ErrorCount++
	w.stats.ConsecutiveErrors++
	if err != nil {
		w.stats.LastError = err.Error()
	}
}
