// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Server   ServerConfig
	Logger   LoggerConfig
	Queue    QueueConfig
}

type AppConfig struct {
	Env              string // "development" or "production"
	APIKey           string
	SeedAccountsFile string
}

type DatabaseConfig struct {
	Path string
}

type ServerConfig struct {
	ListenAddr string
}

type LoggerConfig struct {
	Level  string
	Format string // "classic" or "json"
}

type QueueConfig struct {
	Workers    int
	MaxRetries int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App.Env = strings.ToLower(getEnv("APP_ENV", "development"))
	cfg.App.APIKey = mustGetEnv("APIKEY")
	cfg.App.SeedAccountsFile = getEnv("SEED_ACCOUNTS_FILE", "")

	cfg.Database.Path = getEnv("DB_PATH", "./dispatcher.db")

	cfg.Server.ListenAddr = getEnv("LISTEN_ADDR", ":8080")

	cfg.Logger.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logger.Format = getEnv("LOG_FORMAT", "classic")

	defaultWorkers := 2
	if cfg.App.Env == "production" {
		defaultWorkers = 4
	}
	cfg.Queue.Workers = getEnvInt("QUEUE_WORKERS", defaultWorkers)
	cfg.Queue.MaxRetries = getEnvInt("MAX_RETRIES", 3)

	if cfg.Queue.Workers <= 0 {
		return nil, fmt.Errorf("QUEUE_WORKERS must be positive, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must not be negative, got %d", cfg.Queue.MaxRetries)
	}

	return cfg, nil
}

func mustGetEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		panic(fmt.Sprintf("missing required environment variable: %s", key))
	}
	return value
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
		return result
	}
	return defaultValue
}
