// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "wayfinder", cfg.Logger.ServiceName)
	assert.Equal(t, 1280, cfg.Browser.Viewport.Width)
	assert.Equal(t, 900, cfg.Browser.Viewport.Height)
	assert.Equal(t, 90*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.ClearSettleDelay)
	assert.Equal(t, VisionProviderHTTP, cfg.Vision.Provider)
	assert.Equal(t, "http://localhost:8000/infer", cfg.Vision.Endpoint)
	assert.Equal(t, 120*time.Second, cfg.Vision.Timeout)
	assert.Equal(t, 3, cfg.Agent.MaxConsecutiveRetries)
	assert.Zero(t, cfg.Agent.HumanReplyTimeout, "the default human wait is unbounded")
	assert.Equal(t, ":5000", cfg.Server.ListenAddr)

	require.Contains(t, cfg.LLM.Models, "gemini-pro")
	assert.Equal(t, ProviderGemini, cfg.LLM.Models["gemini-pro"].Provider)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("applies overrides and shared api key", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.viewport.width", 1920)
		v.Set("agent.human_reply_timeout", "5m")
		v.Set("llm.api_key", "shared-secret")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 1920, cfg.Browser.Viewport.Width)
		assert.Equal(t, 5*time.Minute, cfg.Agent.HumanReplyTimeout)
		for name, m := range cfg.LLM.Models {
			assert.Equal(t, "shared-secret", m.APIKey, "model %s should inherit the shared key", name)
		}
	})

	t.Run("picks up provider specific env keys", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gemini-secret")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "gemini-secret", cfg.LLM.Models["gemini-flash"].APIKey)
	})

	t.Run("expands home directory in log file", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/wayfinder.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.NotContains(t, cfg.Logger.LogFile, "~")
		assert.Contains(t, cfg.Logger.LogFile, "wayfinder.log")
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("agent.max_consecutive_retries", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_consecutive_retries")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "negative human reply timeout",
			mutate:  func(c *Config) { c.Agent.HumanReplyTimeout = -time.Second },
			wantErr: "human_reply_timeout",
		},
		{
			name:    "zero viewport",
			mutate:  func(c *Config) { c.Browser.Viewport.Width = 0 },
			wantErr: "viewport",
		},
		{
			name:    "unknown vision provider",
			mutate:  func(c *Config) { c.Vision.Provider = "carrier-pigeon" },
			wantErr: "vision.provider",
		},
		{
			name:    "http vision without endpoint",
			mutate:  func(c *Config) { c.Vision.Endpoint = "" },
			wantErr: "vision.endpoint",
		},
		{
			name: "llm vision pointing at an unknown model",
			mutate: func(c *Config) {
				c.Vision.Provider = VisionProviderLLM
				c.Vision.Model = "missing"
			},
			wantErr: "vision.model",
		},
		{
			name:    "bad planner tier",
			mutate:  func(c *Config) { c.Agent.PlannerTier = "ludicrous" },
			wantErr: "planner_tier",
		},
		{
			name: "unsupported llm provider",
			mutate: func(c *Config) {
				c.LLM.Models["local"] = LLMModelConfig{Provider: "abacus", Model: "x"}
			},
			wantErr: "unsupported provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
