package backendbridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, cfg.Backend.Timeout)
	assert.Equal(t, DefaultRetryPolicy(), cfg.Retry)
	assert.Equal(t, DefaultHealthTTL, cfg.Health.TTL)
	assert.Equal(t, DefaultFailureThreshold, cfg.Health.FailureThreshold)
	assert.Equal(t, DefaultBusRetryDelay, cfg.Bus.RetryDelay)
	assert.Equal(t, DefaultSubjects, cfg.Bus.Subjects)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: https://api.example.com
  substitute_url: http://localhost:4010
  timeout: 3s
retry:
  base_delay: 50ms
health:
  ttl: 2s
bus:
  url: redis://localhost:6379/0
  subjects: ["bus.extensions.events.*"]
`), 0o600))

	t.Setenv("BACKEND_USE_SUBSTITUTE", "true")
	t.Setenv("BACKEND_MAX_RETRIES", "5")
	t.Setenv("BUS_RETRY_DELAY", "500ms")
	t.Setenv("BACKEND_OAUTH_SCOPES", "read, write")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "http://localhost:4010", cfg.Backend.SubstituteURL)
	assert.True(t, cfg.Backend.UseSubstitute)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.Retry.MaxDelay)
	assert.Equal(t, 2*time.Second, cfg.Health.TTL)
	assert.Equal(t, 3*time.Second, cfg.Health.Timeout)
	assert.Equal(t, []string{"bus.extensions.events.*"}, cfg.Bus.Subjects)
	assert.Equal(t, 500*time.Millisecond, cfg.Bus.RetryDelay)
	assert.Equal(t, []string{"read", "write"}, cfg.Backend.OAuth.Scopes)
}

func TestHealthTimeoutFollowsBackendTimeout(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "2s")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Health.Timeout)

	t.Setenv("HEALTH_TIMEOUT", "750ms")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Health.Timeout)
}

func TestLoadConfigRejectsNegativeValues(t *testing.T) {
	t.Setenv("BACKEND_MAX_RETRIES", "-1")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFillDefaultsRetryPolicy(t *testing.T) {
	var c Config
	c.fillDefaults()
	assert.Equal(t, DefaultRetryPolicy(), c.Retry)

	c = Config{Retry: RetryPolicy{BaseDelay: 50 * time.Millisecond}}
	c.fillDefaults()
	assert.Equal(t, 0, c.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, c.Retry.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, c.Retry.MaxDelay)
}
