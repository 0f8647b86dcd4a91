package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "livewatch", cfg.ServiceID)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 2*time.Minute, cfg.LiveInterval)
	assert.Equal(t, 5*time.Minute, cfg.RecentlyOfflineInterval)
	assert.Equal(t, 15*time.Minute, cfg.LongOfflineInterval)
	assert.Equal(t, 10*time.Minute, cfg.OfflineTTL)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, 10*time.Minute, cfg.BreakerInitial)
	assert.Equal(t, time.Hour, cfg.BreakerMax)
	assert.Equal(t, "America/Los_Angeles", cfg.Timezone)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := writeFile(t, "livewatch.yaml", `
service:
  id: livewatch-test
  http_port: 9000
dependencies:
  postgres_url: postgres://file
  kafka_brokers: [" broker-1:9092 ", ""]
admin:
  emails: [ops@example.com]
resolver:
  live_interval: 90s
cache:
  offline_ttl: 20m
quota:
  max_requests: 50
  max_backoff: 2h
schedule:
  timezone: UTC
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ADMIN_EMAILS", "a@example.com, ,b@example.com")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "livewatch-test", cfg.ServiceID)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "postgres://env", cfg.DatabaseURL)
	assert.Equal(t, []string{"broker-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AdminEmails)
	assert.Equal(t, 90*time.Second, cfg.LiveInterval)
	assert.Equal(t, 20*time.Minute, cfg.OfflineTTL)
	assert.Equal(t, 50, cfg.RateLimitRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 2*time.Hour, cfg.BreakerMax)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestLoadConfigKeepsSubSecondFileDurations(t *testing.T) {
	path := writeFile(t, "fast.yaml", `
quota:
  window: 1500ms
cache:
  live_ttl: 750ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimitWindow)
	assert.Equal(t, 750*time.Millisecond, cfg.LiveTTL)

	t.Setenv("CACHE_LIVE_TTL_SECONDS", "3")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "soon")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.LiveTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimitWindow)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "bad.yaml", "service: ["))
	require.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad-duration.yaml", "cache:\n  live_ttl: soon\n"))
	require.ErrorContains(t, err, "cache.live_ttl")

	t.Setenv("BREAKER_INITIAL_SECONDS", "7200")
	_, err = LoadConfig("")
	require.ErrorContains(t, err, "breaker max backoff")
}
