package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	UnusualWhales UnusualWhalesConfig
	Flow          FlowConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"optionsflow"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port           int           `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"60s"`
}

type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"` // watchlist source; config tickers otherwise
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"optionsflow"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"optionsflow"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"5"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"true"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"optionsflow"`

	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	MetricsTTL time.Duration `envconfig:"REDIS_METRICS_TTL" default:"15m"` // latest snapshot lifetime
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"true"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"optionsflow"`
}

type TelegramConfig struct {
	Enabled  bool    `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatIDs  []int64 `envconfig:"TELEGRAM_ALERT_CHAT_IDS"`
}

// UnusualWhalesConfig configures the options flow upstream
type UnusualWhalesConfig struct {
	APIKey     string        `envconfig:"UNUSUAL_WHALES_API_KEY" required:"true"`
	BaseURL    string        `envconfig:"UNUSUAL_WHALES_BASE_URL" default:"https://api.unusualwhales.com"`
	Timeout    time.Duration `envconfig:"UNUSUAL_WHALES_TIMEOUT" default:"30s"`
	PageLimit  int           `envconfig:"UNUSUAL_WHALES_PAGE_LIMIT" default:"100"`
	RateLimit  float64       `envconfig:"UNUSUAL_WHALES_RATE_LIMIT" default:"10"` // requests per second
	RateBurst  int           `envconfig:"UNUSUAL_WHALES_RATE_BURST" default:"1"`
	MaxRetries int           `envconfig:"UNUSUAL_WHALES_MAX_RETRIES" default:"3"`
	Backoff    float64       `envconfig:"UNUSUAL_WHALES_BACKOFF" default:"1.5"`
	CacheTTL   time.Duration `envconfig:"UNUSUAL_WHALES_CACHE_TTL" default:"300s"` // 0 disables the response cache
}

// FlowConfig holds classification, significance and batch settings
type FlowConfig struct {
	BigMoneyPremium     float64 `envconfig:"FLOW_BIG_MONEY_PREMIUM" default:"500000"`
	AggressivePremium   float64 `envconfig:"FLOW_AGGRESSIVE_PREMIUM" default:"100000"`
	AggressiveMaxDTE    int     `envconfig:"FLOW_AGGRESSIVE_MAX_DTE" default:"14"`
	DarkPoolPremium     float64 `envconfig:"FLOW_DARK_POOL_PREMIUM" default:"250000"`
	DarkPoolVolume      int64   `envconfig:"FLOW_DARK_POOL_VOLUME" default:"500"`
	BlockPremium        float64 `envconfig:"FLOW_BLOCK_PREMIUM" default:"500000"`
	GammaSqueezePremium float64 `envconfig:"FLOW_GAMMA_SQUEEZE_PREMIUM" default:"50000"`
	GammaSqueezeMaxDTE  int     `envconfig:"FLOW_GAMMA_SQUEEZE_MAX_DTE" default:"30"`

	GammaThreshold float64 `envconfig:"FLOW_GAMMA_THRESHOLD" default:"1000"`
	DeltaThreshold float64 `envconfig:"FLOW_DELTA_THRESHOLD" default:"100000"`

	MaxConcurrency int           `envconfig:"FLOW_MAX_CONCURRENCY" default:"3"`
	FetchTimeout   time.Duration `envconfig:"FLOW_FETCH_TIMEOUT" default:"30s"`

	Tickers        []string `envconfig:"FLOW_TICKERS" default:"SPY,QQQ,AAPL,TSLA,NVDA"`
	WatchlistLimit int      `envconfig:"FLOW_WATCHLIST_LIMIT" default:"5"`
}

// ClassifierThresholds maps the env settings onto the rule constants
func (c FlowConfig) ClassifierThresholds() flow.ClassifierThresholds {
	return flow.ClassifierThresholds{
		BigMoneyPremium:     c.BigMoneyPremium,
		AggressivePremium:   c.AggressivePremium,
		AggressiveMaxDTE:    c.AggressiveMaxDTE,
		DarkPoolPremium:     c.DarkPoolPremium,
		DarkPoolVolume:      c.DarkPoolVolume,
		BlockPremium:        c.BlockPremium,
		GammaSqueezePremium: c.GammaSqueezePremium,
		GammaSqueezeMaxDTE:  c.GammaSqueezeMaxDTE,
	}
}

// SignificanceThresholds maps the env settings onto the filter thresholds
func (c FlowConfig) SignificanceThresholds() flow.SignificanceThresholds {
	return flow.SignificanceThresholds{
		Gamma: c.GammaThreshold,
		Delta: c.DeltaThreshold,
	}
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	FlowScannerEnabled  bool          `envconfig:"WORKER_FLOW_SCANNER_ENABLED" default:"true"`
	FlowScannerInterval time.Duration `envconfig:"WORKER_FLOW_SCANNER_INTERVAL" default:"5m"`
}

// Validate checks values envconfig cannot. Threshold errors wrap
// ErrInvalidThreshold and must stop startup.
func (c *Config) Validate() error {
	if err := c.Flow.ClassifierThresholds().Validate(); err != nil {
		return errors.Wrap(err, "flow classifier thresholds")
	}
	if err := c.Flow.SignificanceThresholds().Validate(); err != nil {
		return errors.Wrap(err, "flow significance thresholds")
	}
	if c.Flow.MaxConcurrency <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "FLOW_MAX_CONCURRENCY must be positive, got %d", c.Flow.MaxConcurrency)
	}
	if c.Flow.FetchTimeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "FLOW_FETCH_TIMEOUT must be positive, got %s", c.Flow.FetchTimeout)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.Wrap(errors.ErrInvalidInput, "TELEGRAM_BOT_TOKEN is required when TELEGRAM_ENABLED")
	}
	return nil
}

// Load reads configuration from environment variables.
// It first tries to load .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
