package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// NBA Stats API
	StatsBaseURL   string        `envconfig:"NBA_STATS_BASE_URL" default:"https://stats.nba.com/stats"`
	StatsTimeout   time.Duration `envconfig:"NBA_STATS_TIMEOUT" default:"30s"`
	RateLimitDelay time.Duration `envconfig:"NBA_RATE_LIMIT_DELAY" default:"1s"`
	RetryAttempts  int           `envconfig:"NBA_RETRY_ATTEMPTS" default:"3"`
	RetryBase      time.Duration `envconfig:"NBA_RETRY_BASE" default:"15s"`
	RetryJitter    time.Duration `envconfig:"NBA_RETRY_JITTER" default:"15s"`

	// Database
	DatabasePath  string `envconfig:"NBA_DATABASE_PATH" default:"./data/nba_predictions.db"`
	BackupEnabled bool   `envconfig:"NBA_BACKUP_ENABLED" default:"true"`
	BackupPath    string `envconfig:"NBA_BACKUP_PATH" default:"./backups"`

	// Model artifact
	ModelPath      string `envconfig:"NBA_MODEL_PATH" default:"./models/game_quality.json"`
	ModelVersion   string `envconfig:"NBA_MODEL_VERSION" default:"1.0"`
	FeatureVersion string `envconfig:"NBA_FEATURE_VERSION" default:"1.0"`

	// Prediction
	ConfidenceHigh    float64 `envconfig:"NBA_CONFIDENCE_HIGH" default:"0.8"`
	ConfidenceMedium  float64 `envconfig:"NBA_CONFIDENCE_MEDIUM" default:"0.6"`
	DefaultDateOffset int     `envconfig:"NBA_DEFAULT_DATE_OFFSET" default:"-1"`

	// Redis (optional response cache; empty host disables it)
	RedisHost     string `envconfig:"NBA_REDIS_HOST" default:""`
	RedisPort     int    `envconfig:"NBA_REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"NBA_REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"NBA_REDIS_DB" default:"0"`

	// Caching TTL
	CacheTTLStandings time.Duration `envconfig:"NBA_CACHE_TTL_STANDINGS" default:"6h"`
	CacheTTLHistory   time.Duration `envconfig:"NBA_CACHE_TTL_HISTORY" default:"24h"`

	// Application
	AppEnv   string `envconfig:"NBA_APP_ENV" default:"development"`
	LogLevel string `envconfig:"NBA_LOG_LEVEL" default:"info"`

	// Worker
	NightlyRunCron string `envconfig:"NBA_NIGHTLY_RUN_CRON" default:"0 6 * * *"`
	RunOnStart     bool   `envconfig:"NBA_RUN_ON_START" default:"false"`

	// Monitoring
	EnableMetrics bool `envconfig:"NBA_ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"NBA_METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if present
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("NBA_DATABASE_PATH is required")
	}

	if c.ModelPath == "" {
		return fmt.Errorf("NBA_MODEL_PATH is required")
	}

	if c.RetryAttempts < 1 {
		return fmt.Errorf("NBA_RETRY_ATTEMPTS must be at least 1")
	}

	if c.ConfidenceHigh <= 0 || c.ConfidenceHigh > 1 {
		return fmt.Errorf("NBA_CONFIDENCE_HIGH must be in (0, 1]")
	}

	if c.ConfidenceMedium <= 0 || c.ConfidenceMedium >= c.ConfidenceHigh {
		return fmt.Errorf("NBA_CONFIDENCE_MEDIUM must be positive and below NBA_CONFIDENCE_HIGH")
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// RedisEnabled returns true if a Redis cache host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
