package main

import (
	"os"
	"strconv"
	"time"
)

// config collects every environment variable the server reads.
type config struct {
	HTTPAddr string // MAESTRO_HTTP_ADDR, default ":8080"
	LogLevel string // MAESTRO_LOG_LEVEL: debug|info|warn|error

	Store       string // MAESTRO_STORE: memory|postgres
	PostgresDSN string // MAESTRO_POSTGRES_DSN
	RedisAddr   string // MAESTRO_REDIS_ADDR, empty disables Redis

	Concurrency      int // MAESTRO_CONCURRENCY
	VideoConcurrency int // MAESTRO_VIDEO_CONCURRENCY

	BridgeURL string // MAESTRO_BRIDGE_URL
	AssetDir  string // MAESTRO_ASSET_DIR

	JWTSecret   []byte // MAESTRO_JWT_SECRET, enables JWT auth
	RequireAuth bool   // MAESTRO_REQUIRE_AUTH, enables API-token auth

	RateWindow        time.Duration // MAESTRO_RATE_WINDOW
	RetentionSchedule string        // MAESTRO_RETENTION_SCHEDULE
	JobRetention      time.Duration // MAESTRO_JOB_RETENTION
	DLQRetention      time.Duration // MAESTRO_DLQ_RETENTION
	ShutdownTimeout   time.Duration // MAESTRO_SHUTDOWN_TIMEOUT
}

func loadConfig() config {
	return config{
		HTTPAddr: getEnv("MAESTRO_HTTP_ADDR", ":8080"),
		LogLevel: getEnv("MAESTRO_LOG_LEVEL", "info"),

		Store:       getEnv("MAESTRO_STORE", "memory"),
		PostgresDSN: os.Getenv("MAESTRO_POSTGRES_DSN"),
		RedisAddr:   os.Getenv("MAESTRO_REDIS_ADDR"),

		Concurrency:      getEnvInt("MAESTRO_CONCURRENCY", 8),
		VideoConcurrency: getEnvInt("MAESTRO_VIDEO_CONCURRENCY", 2),

		BridgeURL: getEnv("MAESTRO_BRIDGE_URL", "http://localhost:9100"),
		AssetDir:  getEnv("MAESTRO_ASSET_DIR", "./assets"),

		JWTSecret:   []byte(os.Getenv("MAESTRO_JWT_SECRET")),
		RequireAuth: getEnvBool("MAESTRO_REQUIRE_AUTH"),

		RateWindow:        getEnvDuration("MAESTRO_RATE_WINDOW", time.Minute),
		RetentionSchedule: getEnv("MAESTRO_RETENTION_SCHEDULE", "@every 1h"),
		JobRetention:      getEnvDuration("MAESTRO_JOB_RETENTION", 7*24*time.Hour),
		DLQRetention:      getEnvDuration("MAESTRO_DLQ_RETENTION", 30*24*time.Hour),
		ShutdownTimeout:   getEnvDuration("MAESTRO_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
