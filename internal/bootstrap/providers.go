package bootstrap

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/errors/sentry"
	"optionsflow/internal/adapters/kafka"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/adapters/telegram"
	"optionsflow/internal/adapters/unusualwhales"
	"optionsflow/internal/api"
	"optionsflow/internal/api/flowapi"
	"optionsflow/internal/api/health"
	"optionsflow/internal/consumers"
	"optionsflow/internal/domain/flow"
	"optionsflow/internal/events"
	"optionsflow/internal/metrics"
	chrepo "optionsflow/internal/repository/clickhouse"
	pgrepo "optionsflow/internal/repository/postgres"
	redisrepo "optionsflow/internal/repository/redis"
	flowsvc "optionsflow/internal/services/flow"
	"optionsflow/internal/workers"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const connectTimeout = 30 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the data stores. Redis is required;
// Postgres and ClickHouse only when enabled.
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	var err error

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("Redis connected")

	if c.Config.Postgres.Enabled {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("ClickHouse connected")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes storage adapters
func (c *Container) MustInitRepositories() {
	c.Repos.LatestMetrics = redisrepo.NewMetricsStore(c.Redis.Client())
	c.Repos.ResponseCache = redisrepo.NewResponseCache(c.Redis.Client())

	if c.PG != nil {
		c.Repos.Watchlist = pgrepo.NewFlowWatchlistRepository(c.PG.DB())
	}

	if c.CH != nil {
		c.Repos.History = chrepo.NewFlowRepository(c.CH.Conn(), chrepo.FlowRepositoryConfig{
			BatchSize:     c.Config.ClickHouse.BatchSize,
			FlushInterval: c.Config.ClickHouse.FlushInterval,
			Logger:        c.Log,
		})
	}

	c.registerStoreCollector()

	c.Log.Infow("Repositories initialized",
		"watchlist", c.Repos.Watchlist != nil,
		"history", c.Repos.History != nil,
	)
}

func (c *Container) registerStoreCollector() {
	var (
		db   *sqlx.DB
		conn driver.Conn
	)
	if c.PG != nil {
		db = c.PG.DB()
	}
	if c.CH != nil {
		conn = c.CH.Conn()
	}
	metrics.RegisterStoreCollector(metrics.NewStoreCollector(c.Log, db, conn, c.Redis.Client()))
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes the upstream client, Kafka and Telegram
func (c *Container) MustInitAdapters() {
	c.Adapters.UnusualWhales = unusualwhales.NewClient(
		provideUnusualWhalesConfig(c.Config.UnusualWhales),
		c.Repos.ResponseCache,
		c.Log,
	)

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{Brokers: c.Config.Kafka.Brokers}, c.Log)
		c.Log.Infow("Kafka producer initialized", "brokers", c.Config.Kafka.Brokers)
	}

	if c.Config.Telegram.Enabled {
		notifier, err := telegram.NewNotifier(telegram.Config{Token: c.Config.Telegram.BotToken}, c.Log)
		if err != nil {
			c.Log.Fatalf("failed to create telegram notifier: %v", err)
		}
		c.Adapters.Telegram = notifier
	}

	if c.Adapters.KafkaProducer != nil && c.Adapters.Telegram != nil {
		c.Adapters.FlowAlertsConsumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: c.Config.Kafka.Brokers,
			GroupID: c.Config.Kafka.GroupID + "-telegram",
			Topic:   kafka.TopicFlowAlerts,
		}, c.Log)
	}
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices builds the flow pipeline
func (c *Container) MustInitServices() {
	fc := c.Config.Flow

	c.Services.Flow = flowsvc.NewService(
		c.Adapters.UnusualWhales,
		flow.NewClassifier(fc.ClassifierThresholds()),
		flow.NewSignificanceFilter(fc.SignificanceThresholds()),
		flowsvc.Config{
			MaxConcurrency: fc.MaxConcurrency,
			FetchTimeout:   fc.FetchTimeout,
		},
		c.Log,
	)

	if c.Adapters.KafkaProducer != nil {
		c.Services.AlertPublisher = events.NewFlowAlertPublisher(c.Adapters.KafkaProducer, c.Log)
	}

	c.Log.Infow("Flow service initialized",
		"max_concurrency", fc.MaxConcurrency,
		"fetch_timeout", fc.FetchTimeout,
		"gamma_threshold", fc.GammaThreshold,
		"delta_threshold", fc.DeltaThreshold,
	)
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the HTTP API
func (c *Container) MustInitApplication() {
	c.Background.WorkerScheduler = workers.NewScheduler(c.Log)

	c.Application.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version, c.healthChecks())

	// typed nils must not reach the handler interfaces
	var latest flowapi.LatestReader = c.Repos.LatestMetrics
	var history flowapi.HistoryReader
	if c.Repos.History != nil {
		history = c.Repos.History
	}

	c.Application.HTTPServer = api.NewServer(
		api.ServerConfig{
			Port:           c.Config.HTTP.Port,
			ServiceName:    c.Config.App.Name,
			Version:        c.Config.App.Version,
			RequestTimeout: c.Config.HTTP.RequestTimeout,
		},
		c.Application.HealthHandler,
		flowapi.NewHandler(c.Services.Flow, latest, history, c.Log),
		c.Background.WorkerScheduler,
		c.Log,
	)
}

func (c *Container) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"redis": c.Redis.Health,
	}
	if c.PG != nil {
		checks["postgres"] = c.PG.Health
	}
	if c.CH != nil {
		checks["clickhouse"] = c.CH.Health
	}
	return checks
}

// ========================================
// Phase 7: Background Processing
// ========================================

// MustInitBackground registers workers and event consumers
func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler.RegisterWorker(provideFlowScanner(c))

	if c.Adapters.FlowAlertsConsumer != nil {
		c.Background.FlowAlerts = consumers.NewFlowAlertConsumer(
			c.Adapters.FlowAlertsConsumer,
			c.Adapters.Telegram,
			c.Config.Telegram.ChatIDs,
			c.Log,
		)
	}

	c.Log.Infow("Background components initialized",
		"workers", len(c.Background.WorkerScheduler.GetWorkers()),
		"alert_consumer", c.Background.FlowAlerts != nil,
	)
}

// provideErrorTracker returns a Sentry tracker, or a disabled one when
// tracking is off or the client cannot be built
func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return sentry.Disabled()
	}

	tracker, err := sentry.New(sentry.Options{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Version,
		ServerName:  cfg.App.Name,
	})
	if err != nil {
		log.Warnw("Failed to initialize Sentry", "error", err)
		return sentry.Disabled()
	}

	log.Infow("Error tracking initialized", "provider", "sentry", "environment", cfg.ErrorTracking.Environment)
	return tracker
}

func provideUnusualWhalesConfig(cfg config.UnusualWhalesConfig) unusualwhales.Config {
	return unusualwhales.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		PageLimit:  cfg.PageLimit,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
		CacheTTL:   cfg.CacheTTL,
	}
}
