package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/kafka"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/api"
	chrepo "optionsflow/internal/repository/clickhouse"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// ShutdownTargets lists the components to stop. Nil fields are skipped.
type ShutdownTargets struct {
	HTTPServer         *api.Server
	WorkerScheduler    *workers.Scheduler
	FlowAlertsConsumer *kafka.Consumer
	KafkaProducer      *kafka.Producer
	History            *chrepo.FlowRepository
	PG                 *pgclient.Client
	CH                 *chclient.Client
	Redis              *redisclient.Client
	ErrorTracker       errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in order:
// 1. No new requests accepted
// 2. The running scan finishes
// 3. The alert consumer unblocks
// 4. Buffered history is flushed
// 5. Producer closes after the last alert
// 6. Errors and logs are flushed
// 7. Database connections last
func (l *Lifecycle) Shutdown(wg *sync.WaitGroup, t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/7] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/7] Stopping background workers...")
	if t.WorkerScheduler != nil {
		if err := t.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("Workers stopped")
		}
	}

	// Closing the reader unblocks FetchMessage before we wait on goroutines
	log.Info("[3/7] Closing Kafka consumer...")
	if t.FlowAlertsConsumer != nil {
		if err := t.FlowAlertsConsumer.Close(); err != nil {
			log.Errorw("Kafka consumer close failed", "consumer", "flow_alerts", "error", err)
		}
	}
	l.waitForGoroutines(wg, 5*time.Second, log)

	log.Info("[4/7] Flushing flow history...")
	if t.History != nil {
		if err := t.History.Stop(shutdownCtx); err != nil {
			log.Errorw("Flow history flush failed", "error", err)
		} else {
			log.Info("Flow history flushed")
		}
	}

	log.Info("[5/7] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		}
	}

	log.Info("[6/7] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	_ = logger.Sync()

	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors errors.MultiError

	if pgClient != nil {
		dbErrors.Add(errors.Wrap(pgClient.Close(), "postgres"))
	}
	if chClient != nil {
		dbErrors.Add(errors.Wrap(chClient.Close(), "clickhouse"))
	}
	if redisClient != nil {
		dbErrors.Add(errors.Wrap(redisClient.Close(), "redis"))
	}

	if dbErrors.HasErrors() {
		log.Errorw("Database close errors", "errors", dbErrors.Errors)
	} else {
		log.Info("Database connections closed")
	}
}
