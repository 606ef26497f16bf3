// Package config loads process configuration from environment variables,
// following the teacher's config package: explicit defaults, no external
// config file format, fail fast only on genuinely required values (none
// here — Bybit's public market-data endpoints need no credentials).
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	RedisURL string

	BybitRESTBase string
	BybitWSURL    string

	ListenAddr string

	DebounceMs       int
	MaxTopicsPerConn int
	HTTPConcurrency  int
	HTTPRetries      int

	IndexPollSeconds int

	MetricsAddr string
	SQLitePath  string
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:7000/0"),

		BybitRESTBase: getEnv("BYBIT_REST_BASE", "https://api.bybit.com"),
		BybitWSURL:    getEnv("BYBIT_WS_URL", "wss://stream.bybit.com/v5/public/linear"),

		ListenAddr: getEnv("LISTEN_ADDR", "0.0.0.0:8765"),

		DebounceMs:       getEnvInt("DEBOUNCE_MS", 200),
		MaxTopicsPerConn: getEnvInt("MAX_TOPICS_PER_CONN", 200),
		HTTPConcurrency:  getEnvInt("HTTP_CONCURRENCY", 10),
		HTTPRetries:      getEnvInt("HTTP_RETRIES", 3),

		IndexPollSeconds: getEnvInt("INDEX_POLL_SECONDS", 60),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/index_history.db"),
	}
}

// DebounceWindow returns DebounceMs as a time.Duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// IndexPollInterval returns IndexPollSeconds as a time.Duration.
func (c *Config) IndexPollInterval() time.Duration {
	return time.Duration(c.IndexPollSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
