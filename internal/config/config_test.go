package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, "https://www.kimovil.com", cfg.Scraper.BaseURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "English", cfg.Normalizer.Language)
	assert.InDelta(t, 0.4, cfg.Normalizer.Temperature, 1e-6)
	assert.False(t, cfg.Jobs.AutoPick)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://dash.example.com, https://admin.example.com")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("BROWSER_TIMEOUT", "0s")
	t.Setenv("JOB_AUTO_PICK", "true")
	t.Setenv("JOB_STEP_TIMEOUT", "90s")
	t.Setenv("NORMALIZER_LANGUAGE", "Russian")
	t.Setenv("NORMALIZER_TEMPERATURE", "0")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Browser.Headless)
	assert.Zero(t, cfg.Browser.Timeout)
	assert.True(t, cfg.Jobs.AutoPick)
	assert.Equal(t, 90*time.Second, cfg.Jobs.StepTimeout)
	assert.Equal(t, "Russian", cfg.Normalizer.Language)
	assert.Zero(t, cfg.Normalizer.Temperature)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_IgnoresUnparseableValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("BROWSER_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"relative base url", func(c *Config) { c.Scraper.BaseURL = "kimovil.com" }, "SCRAPER_BASE_URL"},
		{"inverted rate limits", func(c *Config) { c.Scraper.RateLimitMin = 2 * c.Scraper.RateLimitMax }, "SCRAPER_RATE_LIMIT_MIN"},
		{"negative browser timeout", func(c *Config) { c.Browser.Timeout = -time.Second }, "BROWSER_TIMEOUT"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"temperature too high", func(c *Config) { c.Normalizer.Temperature = 3 }, "NORMALIZER_TEMPERATURE"},
		{"empty relay batch", func(c *Config) { c.Relay.BatchSize = 0 }, "RELAY_BATCH_SIZE"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_LLMConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.LLMConfigured())

	cfg.LLM.BaseURL = "http://localhost:11434/v1"
	assert.True(t, cfg.LLMConfigured())
}
