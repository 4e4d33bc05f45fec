package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://stats.nba.com/stats", cfg.StatsBaseURL)
	assert.Equal(t, time.Second, cfg.RateLimitDelay)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 15*time.Second, cfg.RetryBase)
	assert.Equal(t, -1, cfg.DefaultDateOffset)
	assert.InDelta(t, 0.8, cfg.ConfidenceHigh, 0.0001)
	assert.InDelta(t, 0.6, cfg.ConfidenceMedium, 0.0001)
	assert.False(t, cfg.RedisEnabled(), "cache is off without a host")
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NBA_RETRY_ATTEMPTS", "5")
	t.Setenv("NBA_REDIS_HOST", "cache.internal")
	t.Setenv("NBA_REDIS_PORT", "6380")
	t.Setenv("NBA_APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabasePath:     "./data/test.db",
			ModelPath:        "./models/test.json",
			RetryAttempts:    3,
			ConfidenceHigh:   0.8,
			ConfidenceMedium: 0.6,
		}
	}

	assert.NoError(t, validPtr(valid()).Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing database path", mutate: func(c *Config) { c.DatabasePath = "" }},
		{name: "missing model path", mutate: func(c *Config) { c.ModelPath = "" }},
		{name: "zero retry attempts", mutate: func(c *Config) { c.RetryAttempts = 0 }},
		{name: "confidence high above one", mutate: func(c *Config) { c.ConfidenceHigh = 1.5 }},
		{name: "confidence medium above high", mutate: func(c *Config) { c.ConfidenceMedium = 0.9 }},
		{name: "confidence medium zero", mutate: func(c *Config) { c.ConfidenceMedium = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func validPtr(c Config) *Config { return &c }
