package bootstrap

import (
	"context"
	"sync"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/kafka"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/adapters/telegram"
	"optionsflow/internal/adapters/unusualwhales"
	"optionsflow/internal/api"
	"optionsflow/internal/api/health"
	"optionsflow/internal/consumers"
	"optionsflow/internal/events"
	chrepo "optionsflow/internal/repository/clickhouse"
	pgrepo "optionsflow/internal/repository/postgres"
	redisrepo "optionsflow/internal/repository/redis"
	flowsvc "optionsflow/internal/services/flow"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores). PG and CH are nil when disabled.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups storage adapters
type Repositories struct {
	LatestMetrics *redisrepo.MetricsStore
	ResponseCache *redisrepo.ResponseCache
	History       *chrepo.FlowRepository          // nil without ClickHouse
	Watchlist     *pgrepo.FlowWatchlistRepository // nil without Postgres
}

// Adapters groups all external adapters
type Adapters struct {
	UnusualWhales *unusualwhales.Client

	// Kafka, nil when disabled
	KafkaProducer      *kafka.Producer
	FlowAlertsConsumer *kafka.Consumer

	// Telegram, nil when disabled
	Telegram *telegram.Notifier
}

// Services groups application services
type Services struct {
	Flow           *flowsvc.Service
	AlertPublisher *events.FlowAlertPublisher // nil without Kafka
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler *workers.Scheduler
	FlowAlerts      *consumers.FlowAlertConsumer // nil unless Kafka and Telegram are enabled
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.History != nil {
		c.Repos.History.Start(c.Context)
	}

	if c.Background.FlowAlerts != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Background.FlowAlerts.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Flow alert consumer failed", "error", err)
			}
		}()
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Info("All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(c.WG, ShutdownTargets{
		HTTPServer:         c.Application.HTTPServer,
		WorkerScheduler:    c.Background.WorkerScheduler,
		FlowAlertsConsumer: c.Adapters.FlowAlertsConsumer,
		KafkaProducer:      c.Adapters.KafkaProducer,
		History:            c.Repos.History,
		PG:                 c.PG,
		CH:                 c.CH,
		Redis:              c.Redis,
		ErrorTracker:       c.ErrorTracker,
	}, c.Log)
}
