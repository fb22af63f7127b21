package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 2, cfg.Queue.MaxRetry())
	assert.Equal(t, 2*time.Second, cfg.Queue.Backoff)
	assert.Equal(t, 3*time.Second, cfg.Queue.CancelWait)
	assert.Equal(t, 900*time.Second, cfg.Cache.ImageTTL)
	assert.Equal(t, time.Hour, cfg.S3.SignedURLTTL)
	assert.Equal(t, "receipts", cfg.S3.KeyPrefix)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, "llava:13b", cfg.Ollama.Model)
	assert.Equal(t, 10*time.Minute, cfg.Ollama.Timeout)
	assert.True(t, cfg.Auth.AllowRawToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OLLAMA_HOST", "http://ollama:11434/")
	t.Setenv("QUEUE_ATTEMPTS", "5")
	t.Setenv("CACHE_IMAGE_TTL", "30s")
	t.Setenv("S3_KEY_PREFIX", "/scans/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://ollama:11434", cfg.Ollama.Host)
	assert.Equal(t, 4, cfg.Queue.MaxRetry())
	assert.Equal(t, 30*time.Second, cfg.Cache.ImageTTL)
	assert.Equal(t, "scans", cfg.S3.KeyPrefix)
}

func TestSanitize_ClampsInvalidValues(t *testing.T) {
	cfg := Config{}
	cfg.Upload.MaxBytes = -1
	cfg.Queue.Concurrency = 0
	cfg.Dispatch.Workers = -3

	cfg.Sanitize()

	assert.Equal(t, int64(defaultMaxBytes), cfg.Upload.MaxBytes)
	assert.Equal(t, defaultConcurrency, cfg.Queue.Concurrency)
	assert.Equal(t, 1, cfg.Dispatch.Workers)
	assert.Equal(t, "extractions", cfg.Queue.Name)
	assert.Equal(t, 0, QueueConfig{Attempts: 1}.MaxRetry())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
