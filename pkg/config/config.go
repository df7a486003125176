package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 所有环境变量只在这里读取
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Tushare TushareConfig
	AI      AIConfig

	// ETL
	ETLBatchSize int

	// Sync
	Sync SyncConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Cache
	CacheTechTTL          time.Duration
	CacheRefreshBatchSize int

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// TushareConfig holds Tushare Pro API configuration
type TushareConfig struct {
	Token         string
	BaseURL       string
	RetryCount    int
	RetryInterval time.Duration
	Timeout       time.Duration
	QPMLimit      int // requests per minute, shared across all endpoints
}

// AIConfig holds LLM scoring configuration
type AIConfig struct {
	APIKey      string
	BaseURL     string
	ModelID     string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	DailyBudget int // max LLM calls per trade date
	ScoreTopN   int
}

// SyncConfig holds data sync tuning parameters
type SyncConfig struct {
	Concurrency           int           // per-stock workers
	BatchDaysWindow       int           // days per sync window
	IndicatorLookback     int           // history days loaded for incremental indicators
	MaxRetries            int           // failed-stock retry cap
	HistoryStart          string        // earliest date ever synced, YYYY-MM-DD
	BatchTimeout          time.Duration // overall timeout for a batch run, 0 = none
	CompletenessThreshold float64       // pipeline gate
}

// SchedulerConfig holds cron expressions and probe settings
type SchedulerConfig struct {
	AutoUpdateCron string // daily post-market entry
	RetryCron      string // failed-stocks retry
	StockListCron  string // weekly full list refresh
	ProbeInterval  time.Duration
	ProbeTimeout   string // HH:MM wall clock deadline
	ProbeStocks    []string
	ProbeThreshold float64
	ShutdownGrace  time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 只有这个函数调用 os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Tushare: TushareConfig{
			Token:         getEnv("TUSHARE_TOKEN", ""),
			BaseURL:       getEnv("TUSHARE_BASE_URL", "https://api.tushare.pro"),
			RetryCount:    getEnvAsInt("TUSHARE_RETRY_COUNT", 2),
			RetryInterval: getEnvAsDuration("TUSHARE_RETRY_INTERVAL", "2s"),
			Timeout:       getEnvAsDuration("TUSHARE_TIMEOUT", "30s"),
			QPMLimit:      getEnvAsInt("TUSHARE_QPM_LIMIT", 400),
		},

		AI: AIConfig{
			APIKey:      getEnv("AI_API_KEY", ""),
			BaseURL:     getEnv("AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			ModelID:     getEnv("AI_MODEL_ID", "gemini-2.0-flash"),
			Timeout:     getEnvAsDuration("AI_TIMEOUT", "60s"),
			MaxRetries:  getEnvAsInt("AI_MAX_RETRIES", 1),
			MaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 8192),
			DailyBudget: getEnvAsInt("AI_DAILY_BUDGET", 20),
			ScoreTopN:   getEnvAsInt("AI_SCORE_TOP_N", 30),
		},

		ETLBatchSize: getEnvAsInt("ETL_BATCH_SIZE", 5000),

		Sync: SyncConfig{
			Concurrency:           getEnvAsInt("SYNC_CONCURRENCY", 10),
			BatchDaysWindow:       getEnvAsInt("SYNC_BATCH_DAYS_WINDOW", 365),
			IndicatorLookback:     getEnvAsInt("SYNC_INDICATOR_LOOKBACK", 300),
			MaxRetries:            getEnvAsInt("SYNC_MAX_RETRIES", 3),
			HistoryStart:          getEnv("SYNC_HISTORY_START", "2018-01-01"),
			BatchTimeout:          getEnvAsDuration("SYNC_BATCH_TIMEOUT", "0s"),
			CompletenessThreshold: getEnvAsFloat("SYNC_COMPLETENESS_THRESHOLD", 0.8),
		},

		Scheduler: SchedulerConfig{
			AutoUpdateCron: getEnv("SCHEDULER_AUTO_UPDATE_CRON", "0 30 15 * * 1-5"),
			RetryCron:      getEnv("SCHEDULER_RETRY_CRON", "0 0 20 * * 1-5"),
			StockListCron:  getEnv("SCHEDULER_STOCK_LIST_CRON", "0 0 8 * * 6"),
			ProbeInterval:  getEnvAsDuration("SCHEDULER_PROBE_INTERVAL", "15m"),
			ProbeTimeout:   getEnv("SCHEDULER_PROBE_TIMEOUT", "18:00"),
			ProbeStocks: getEnvAsSlice("SCHEDULER_PROBE_STOCKS",
				[]string{"600519.SH", "000001.SZ", "600036.SH", "000858.SZ", "601318.SH"}),
			ProbeThreshold: getEnvAsFloat("SCHEDULER_PROBE_THRESHOLD", 0.8),
			ShutdownGrace:  getEnvAsDuration("SCHEDULER_SHUTDOWN_GRACE", "30s"),
		},

		CacheTechTTL:          getEnvAsDuration("CACHE_TECH_TTL", "25h"),
		CacheRefreshBatchSize: getEnvAsInt("CACHE_REFRESH_BATCH_SIZE", 500),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := time.Parse("2006-01-02", c.Sync.HistoryStart); err != nil {
		return fmt.Errorf("SYNC_HISTORY_START must be YYYY-MM-DD: %w", err)
	}

	if _, err := time.Parse("15:04", c.Scheduler.ProbeTimeout); err != nil {
		return fmt.Errorf("SCHEDULER_PROBE_TIMEOUT must be HH:MM: %w", err)
	}

	if c.Sync.CompletenessThreshold < 0 || c.Sync.CompletenessThreshold > 1 {
		return fmt.Errorf("SYNC_COMPLETENESS_THRESHOLD must be within [0, 1]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations.
// APP_ENV_FILE overrides the search entirely.
func loadEnvFile() {
	if override := os.Getenv("APP_ENV_FILE"); override != "" {
		_ = godotenv.Load(override)
		return
	}

	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
