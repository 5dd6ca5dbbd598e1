package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every startup setting for the in-process job service.
// Precedence, low to high: YAML file defaults -> process environment
// (including .env, loaded by the caller before Load runs).
type Config struct {
	Env  string
	Port int

	WorkerCount           int
	DefaultMaxRetries     int
	DefaultTimeoutSeconds int
	ShutdownGrace         time.Duration
	StatusCacheTTL        time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookURL string

	DatabaseURL string

	OTLPEndpoint string

	SubmitRateLimit  int
	SubmitRateWindow time.Duration
}

// fileDefaults is the subset of Config a YAML file may override before
// env vars get the final say.
type fileDefaults struct {
	Port                  *int    `yaml:"port"`
	WorkerCount           *int    `yaml:"worker_count"`
	DefaultMaxRetries     *int    `yaml:"default_max_retries"`
	DefaultTimeoutSeconds *int    `yaml:"default_timeout_seconds"`
	ShutdownGraceSeconds  *int    `yaml:"shutdown_grace_seconds"`
	StatusCacheTTLSeconds *int    `yaml:"status_cache_ttl_seconds"`
	RedisAddr             *string `yaml:"redis_addr"`
	WebhookURL            *string `yaml:"webhook_url"`
	DatabaseURL           *string `yaml:"database_url"`
}

// Load builds a Config from an optional YAML file followed by the
// process environment. configPath may be empty.
func Load(configPath string) (Config, error) {
	var fd fileDefaults
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(raw, &fd); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	cfg := Config{
		Env:                   getEnv("APP_ENV", "dev"),
		Port:                  getEnvInt("PORT", intOr(fd.Port, 8080)),
		WorkerCount:           getEnvInt("WORKER_COUNT", intOr(fd.WorkerCount, 4)),
		DefaultMaxRetries:     getEnvInt("DEFAULT_MAX_RETRIES", intOr(fd.DefaultMaxRetries, 3)),
		DefaultTimeoutSeconds: getEnvInt("DEFAULT_TIMEOUT_SECONDS", intOr(fd.DefaultTimeoutSeconds, 30)),
		ShutdownGrace:         time.Duration(getEnvInt("SHUTDOWN_GRACE", intOr(fd.ShutdownGraceSeconds, 10))) * time.Second,
		StatusCacheTTL:        time.Duration(getEnvInt("STATUS_CACHE_TTL", intOr(fd.StatusCacheTTLSeconds, 2))) * time.Second,

		RedisAddr:     getEnv("REDIS_ADDR", strOr(fd.RedisAddr, "")),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WebhookURL: getEnv("WEBHOOK_URL", strOr(fd.WebhookURL, "")),

		DatabaseURL: getEnv("DATABASE_URL", strOr(fd.DatabaseURL, "")),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		SubmitRateLimit:  getEnvInt("SUBMIT_RATE_LIMIT", 100),
		SubmitRateWindow: time.Duration(getEnvInt("SUBMIT_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}

	return cfg, nil
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return num
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func strOr(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
