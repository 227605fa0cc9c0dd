package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string // "development" or "production"
	LogLevel    string
	ServerPort  string

	// Storage
	StorageDriver string
	DataDir       string
	SQLitePath    string
	DBSource      string // postgres connection string
	CatalogPath   string // optional YAML game catalog

	// Receipt cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReceiptTTL    time.Duration

	// Analytics
	ElasticsearchURL         string
	ElasticsearchUsername    string
	ElasticsearchPassword    string
	ElasticsearchIndexPrefix string
	ElasticsearchRetention   time.Duration

	// Big-win notifications
	DiscordWebhookID    string
	DiscordWebhookToken string
	BigWinMultiplier    int64

	// Settlement tuning
	MaxConflictRetries int
	StepTimeout        time.Duration
	AchievementTimeout time.Duration

	// Reconciliation
	ReconcileInterval time.Duration
	OrphanDebitAge    time.Duration
	AutoCompensate    bool
	OperatorToken     string // enables the operator routes when set
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	dataDir := getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data"))

	cfg := &Config{
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		ServerPort:  getEnvWithDefault("SERVER_PORT", "8080"),

		StorageDriver: getEnvWithDefault("STORAGE_DRIVER", DriverMemory),
		DataDir:       dataDir,
		SQLitePath:    getEnvWithDefault("SQLITE_PATH", filepath.Join(dataDir, "spinz.db")),
		DBSource:      os.Getenv("DB_SOURCE"),
		CatalogPath:   os.Getenv("CATALOG_PATH"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ElasticsearchURL:         os.Getenv("ELASTICSEARCH_URL"),
		ElasticsearchUsername:    os.Getenv("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword:    os.Getenv("ELASTICSEARCH_PASSWORD"),
		ElasticsearchIndexPrefix: getEnvWithDefault("ELASTICSEARCH_INDEX_PREFIX", "spinz"),

		DiscordWebhookID:    os.Getenv("DISCORD_WEBHOOK_ID"),
		DiscordWebhookToken: os.Getenv("DISCORD_WEBHOOK_TOKEN"),

		OperatorToken: os.Getenv("OPERATOR_TOKEN"),
	}

	if cfg.ElasticsearchRetention, err = getEnvDuration("ELASTICSEARCH_RETENTION", 365*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ReceiptTTL, err = getEnvDuration("RECEIPT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	bigWin, err := getEnvInt("BIG_WIN_MULTIPLIER", 20)
	if err != nil {
		return nil, err
	}
	cfg.BigWinMultiplier = int64(bigWin)
	if cfg.MaxConflictRetries, err = getEnvInt("MAX_CONFLICT_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.StepTimeout, err = getEnvDuration("STEP_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.AchievementTimeout, err = getEnvDuration("ACHIEVEMENT_TIMEOUT", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OrphanDebitAge, err = getEnvDuration("ORPHAN_DEBIT_AGE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.AutoCompensate, err = getEnvBool("AUTO_COMPENSATE", false); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageDriver == DriverSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE is required when STORAGE_DRIVER=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES cannot be negative")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT must be positive")
	}
	// a settlement spends up to four step timeouts between its debit and its result
	if c.OrphanDebitAge <= 4*c.StepTimeout {
		return fmt.Errorf("ORPHAN_DEBIT_AGE must be longer than four times STEP_TIMEOUT (%s)", 4*c.StepTimeout)
	}
	if c.BigWinMultiplier < 1 {
		return fmt.Errorf("BIG_WIN_MULTIPLIER must be at least 1")
	}
	if (c.DiscordWebhookID == "") != (c.DiscordWebhookToken == "") {
		return fmt.Errorf("DISCORD_WEBHOOK_ID and DISCORD_WEBHOOK_TOKEN must be set together")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
