package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ":8081", cfg.Push.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 24*time.Hour, cfg.Security.SessionTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FWD_ENV", "production")
	t.Setenv("FWD_SERVER_ADDR", ":9999")
	t.Setenv("FWD_STORAGE_ADAPTER", "redis")
	t.Setenv("FWD_REDIS_ADDR", "redis:6379")
	t.Setenv("FWD_REDIS_DB", "3")
	t.Setenv("FWD_SESSION_TTL", "2h")
	t.Setenv("FWD_RATE_LIMIT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "redis", cfg.Storage.Adapter)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.Security.SessionTTL)
	assert.True(t, cfg.Security.EnableRateLimit)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("FWD_STORAGE_ADAPTER", "cassandra")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("FWD_SESSION_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestRedisOptionsMergeDefaults(t *testing.T) {
	opts := RedisConfig{Addr: "redis:6379", DB: 2}.Options()
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	// untouched knobs keep adapter defaults
	assert.Equal(t, 10, opts.PoolSize)

	opts = RedisConfig{}.Options()
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestConfigStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Redis.Password = "hunter2"
	cfg.Security.AdminAPIKey = "topsecret"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "topsecret")
	assert.Contains(t, s, "[REDACTED]")
}

func TestSecurityValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.EnableRateLimit = true
	cfg.Security.RateLimit.RequestsPerMinute = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Security.SessionTTL = 0
	assert.Error(t, cfg.Validate())
}
