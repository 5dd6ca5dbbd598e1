package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFileOrEnv(t *testing.T) {
	clearJobqueueEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.DefaultMaxRetries)
	assert.Equal(t, 30, cfg.DefaultTimeoutSeconds)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_EnvOverridesFileDefaults(t *testing.T) {
	clearJobqueueEnv(t)

	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nworker_count: 8\n"), 0o644))

	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "env must win over the file default")
	assert.Equal(t, 8, cfg.WorkerCount, "file default applies when env is unset")
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func clearJobqueueEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "WORKER_COUNT", "DEFAULT_MAX_RETRIES",
		"DEFAULT_TIMEOUT_SECONDS", "SHUTDOWN_GRACE", "STATUS_CACHE_TTL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "WEBHOOK_URL",
		"DATABASE_URL", "OTEL_EXPORTER_OTLP_ENDPOINT", "SUBMIT_RATE_LIMIT",
		"SUBMIT_RATE_WINDOW_SECONDS",
	} {
		t.Setenv(key, "")
	}
}
