// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"os"
	"testing"
)

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		_ = os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range vars {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnvVars(t, map[string]string{"APIKEY": "secret"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Env != "development" {
		t.Errorf("App.Env = %v, expected development", cfg.App.Env)
	}
	if cfg.Database.Path != "./dispatcher.db" {
		t.Errorf("Database.Path = %v, expected ./dispatcher.db", cfg.Database.Path)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %v, expected :8080", cfg.Server.ListenAddr)
	}
	if cfg.Queue.Workers != 2 {
		t.Errorf("Queue.Workers = %v, expected 2 in development", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("Queue.MaxRetries = %v, expected 3", cfg.Queue.MaxRetries)
	}
}

func TestLoad_ProductionDefaultsToMoreWorkers(t *testing.T) {
	setEnvVars(t, map[string]string{"APIKEY": "secret", "APP_ENV": "production"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Queue.Workers != 4 {
		t.Errorf("Queue.Workers = %v, expected 4 in production", cfg.Queue.Workers)
	}
}

func TestLoad_ExplicitOverridesWin(t *testing.T) {
	setEnvVars(t, map[string]string{
		"APIKEY":        "secret",
		"APP_ENV":       "production",
		"QUEUE_WORKERS": "7",
		"MAX_RETRIES":   "5",
		"DB_PATH":       "/data/dispatcher.db",
		"LISTEN_ADDR":   ":9090",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Queue.Workers != 7 {
		t.Errorf("Queue.Workers = %v, expected 7", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("Queue.MaxRetries = %v, expected 5", cfg.Queue.MaxRetries)
	}
	if cfg.Database.Path != "/data/dispatcher.db" {
		t.Errorf("Database.Path = %v, expected /data/dispatcher.db", cfg.Database.Path)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Server.ListenAddr = %v, expected :9090", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingAPIKeyPanics(t *testing.T) {
	_ = os.Unsetenv("APIKEY")

	defer func() {
		if recover() == nil {
			t.Error("Load() should panic when APIKEY is missing")
		}
	}()

	_, _ = Load()
}

func TestLoad_InvalidQueueWorkersErrors(t *testing.T) {
	setEnvVars(t, map[string]string{"APIKEY": "secret", "QUEUE_WORKERS": "0"})

	_, err := Load()
	if err == nil {
		t.Error("Load() should error when QUEUE_WORKERS is not positive")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{"valid integer", "587", 25, 587},
		{"missing uses default", "", 100, 100},
		{"invalid integer uses default", "not-a-number", 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "TEST_CONFIG_INT_VAR"
			_ = os.Unsetenv(key)
			if tt.envValue != "" {
				_ = os.Setenv(key, tt.envValue)
				defer func() { _ = os.Unsetenv(key) }()
			}

			if got := getEnvInt(key, tt.defaultValue); got != tt.expected {
				t.Errorf("getEnvInt() = %v, expected %v", got, tt.expected)
			}
		})
	}
}
