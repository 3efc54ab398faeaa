// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults for tunables that are rarely overridden.
const (
	DefaultBatchSize       = 50
	DefaultTitleBatchSize  = 30
	DefaultConcurrency     = 5
	DefaultPoolSize        = 10
	DefaultRefreshInterval = 60 // minutes
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	// AI provider settings. Provider is "anthropic" or "openai"
	// (any OpenAI-compatible endpoint).
	AIProvider string
	AIAPIKey   string
	AIModel    string
	AIBaseURL  string

	// Reorganization pipeline tunables.
	BatchSize      int
	TitleBatchSize int
	Concurrency    int

	// Feed discovery and refresh.
	PoolSize           int
	RefreshIntervalMin int
	NotifyEnabled      bool

	// Push-relay notification endpoint (Bark-style). Optional.
	PushRelayURL string
	PushUserKey  string

	// Telegram notification sink. Optional.
	TelegramToken  string
	TelegramChatID int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/markpilot.db"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		AIProvider:         envOrDefault("AI_PROVIDER", "openai"),
		AIAPIKey:           os.Getenv("AI_API_KEY"),
		AIModel:            os.Getenv("AI_MODEL"),
		AIBaseURL:          os.Getenv("AI_BASE_URL"),
		BatchSize:          DefaultBatchSize,
		TitleBatchSize:     DefaultTitleBatchSize,
		Concurrency:        DefaultConcurrency,
		PoolSize:           DefaultPoolSize,
		RefreshIntervalMin: DefaultRefreshInterval,
		NotifyEnabled:      os.Getenv("NOTIFY_ENABLED") != "false",
		PushRelayURL:       os.Getenv("PUSH_RELAY_URL"),
		PushUserKey:        os.Getenv("PUSH_USER_KEY"),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.BatchSize, err = envInt("BATCH_SIZE", cfg.BatchSize); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = envInt("CONCURRENCY", cfg.Concurrency); err != nil {
		return nil, err
	}
	if cfg.PoolSize, err = envInt("POOL_SIZE", cfg.PoolSize); err != nil {
		return nil, err
	}
	if cfg.RefreshIntervalMin, err = envInt("REFRESH_INTERVAL_MIN", cfg.RefreshIntervalMin); err != nil {
		return nil, err
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
