package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "produce", cfg.ListingsCollection)
	assert.Equal(t, 3, cfg.SubmitMaxAttempts)
	assert.Equal(t, time.Second, cfg.SubmitRetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
	assert.Empty(t, cfg.ReadOnlyCollections)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DOCSTORE_READONLY", "produce, archive ,")
	t.Setenv("SUBMIT_RETRY_DELAY", "250ms")
	t.Setenv("ALLOW_CROSS_SITE_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"produce", "archive"}, cfg.ReadOnlyCollections)
	assert.Equal(t, 250*time.Millisecond, cfg.SubmitRetryDelay)
	assert.True(t, cfg.AllowCrossSiteDev)
}

func TestLoad_RequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroAttempts(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SUBMIT_MAX_ATTEMPTS", "0")
	_, err := Load()
	assert.Error(t, err)
}
