// Package config loads connector and server tunables from environment
// variables, following the teacher's cmd/api/main.go getEnv(key, fallback)
// idiom.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/taskengine/backgroundtask/connector"
)

// Config holds the environment-derived settings read by cmd/apiserver.
// cmd/worker reads its own WORKER_ID and METRICS_PORT variables directly.
type Config struct {
	Connector   connector.Config
	DatabaseURL string
	Port        string
	MetricsPort string
	EngineName  string
}

// Load reads TASK_INTERVAL_MS, RETRY_INTERVAL_MS, CLEANUP_INTERVAL_MS,
// ENGINE_NAME, DATABASE_URL, PORT, and METRICS_PORT, falling back to the
// connector's own defaults when a variable is absent or unparseable.
func Load() Config {
	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		EngineName:  getEnv("ENGINE_NAME", "engine"),
	}
	cfg.Connector = connector.Config{
		TaskInterval:    getEnvDuration("TASK_INTERVAL_MS", 0),
		RetryInterval:   getEnvDuration("RETRY_INTERVAL_MS", 0),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL_MS", 0),
		EngineName:      cfg.EngineName,
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvDuration parses key as milliseconds, returning fallback (itself a
// duration) if the variable is unset or invalid. connector.Config.setDefaults
// replaces a zero duration with the package default, so fallback is 0 here.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
