// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Each section maps to a
// top-level key in config.yaml and can be overridden through WAYFINDER_*
// environment variables.
type Config struct {
	Logger  LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Vision  VisionConfig    `mapstructure:"vision" yaml:"vision"`
	LLM     LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Server  ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the single browser session owned by the
// navigation worker.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// ExecPath overrides the Chrome binary discovered on PATH.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`

	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	IdleQuietPeriod    time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	ClearSettleDelay   time.Duration `mapstructure:"clear_settle_delay" yaml:"clear_settle_delay"`
	WaitFallback       time.Duration `mapstructure:"wait_fallback" yaml:"wait_fallback"`
}

// ViewportConfig is the initial window size. Coordinates are always scaled
// against the live size reported by the page, not these values.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// VisionProvider selects the backend used for image understanding.
type VisionProvider string

const (
	// VisionProviderHTTP talks to a self-hosted VLM inference server.
	VisionProviderHTTP VisionProvider = "http"
	// VisionProviderLLM routes image prompts through a multimodal LLM client.
	VisionProviderLLM VisionProvider = "llm"
)

// VisionConfig configures the image-understanding service.
type VisionConfig struct {
	Provider           VisionProvider `mapstructure:"provider" yaml:"provider"`
	Endpoint           string         `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout            time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	RateLimitPerSecond float64        `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	Burst              int            `mapstructure:"burst" yaml:"burst"`
	MaxRetries         int            `mapstructure:"max_retries" yaml:"max_retries"`
	// Model names the llm.models entry used when Provider is "llm".
	Model string `mapstructure:"model" yaml:"model"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	MaxConsecutiveRetries int `mapstructure:"max_consecutive_retries" yaml:"max_consecutive_retries"`
	// HumanReplyTimeout bounds how long a task waits for a reply. Zero waits forever.
	HumanReplyTimeout time.Duration `mapstructure:"human_reply_timeout" yaml:"human_reply_timeout"`
	DecisionTimeout   time.Duration `mapstructure:"decision_timeout" yaml:"decision_timeout"`
	NarratorEnabled   bool          `mapstructure:"narrator_enabled" yaml:"narrator_enabled"`
	PlannerTier       string        `mapstructure:"planner_tier" yaml:"planner_tier"`
}

// ServerConfig configures the web front end and chat transport.
type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	// Unmarshalling defaults into a typed struct cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults registers a default for every known key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wayfinder")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 900)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.command_timeout", "2m")
	v.SetDefault("browser.settle_delay", "1s")
	v.SetDefault("browser.idle_quiet_period", "500ms")
	v.SetDefault("browser.network_idle_timeout", "10s")
	v.SetDefault("browser.clear_settle_delay", "500ms")
	v.SetDefault("browser.wait_fallback", "2s")

	// -- Vision --
	v.SetDefault("vision.provider", string(VisionProviderHTTP))
	v.SetDefault("vision.endpoint", "http://localhost:8000/infer")
	v.SetDefault("vision.timeout", "120s")
	v.SetDefault("vision.rate_limit_per_second", 2.0)
	v.SetDefault("vision.burst", 1)
	v.SetDefault("vision.max_retries", 2)
	v.SetDefault("vision.model", "")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models", map[string]interface{}{
		"gemini-flash": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
			"temperature": 0.7,
			"max_tokens":  2048,
		},
		"gemini-pro": map[string]interface{}{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "120s",
			"temperature": 0.0,
			"max_tokens":  4096,
		},
	})

	// -- Agent --
	v.SetDefault("agent.max_consecutive_retries", 3)
	v.SetDefault("agent.human_reply_timeout", "0s")
	v.SetDefault("agent.decision_timeout", "2m")
	v.SetDefault("agent.narrator_enabled", false)
	v.SetDefault("agent.planner_tier", "powerful")

	// -- Server --
	v.SetDefault("server.listen_addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{})
}

// NewConfigFromViper unmarshals the viper state into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("llm.api_key", "WAYFINDER_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.applySecrets(v.GetString("llm.api_key"))

	if cfg.Logger.LogFile != "" {
		expanded, err := homedir.Expand(cfg.Logger.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand log file path: %w", err)
		}
		cfg.Logger.LogFile = expanded
	}
	if cfg.Browser.ExecPath != "" {
		expanded, err := homedir.Expand(cfg.Browser.ExecPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand browser exec path: %w", err)
		}
		cfg.Browser.ExecPath = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applySecrets fills in API keys that were left out of the config file. A
// shared key applies to every model; provider-specific env vars come next.
func (c *Config) applySecrets(sharedKey string) {
	for name, m := range c.LLM.Models {
		if m.APIKey != "" {
			continue
		}
		switch {
		case sharedKey != "":
			m.APIKey = sharedKey
		case m.Provider == ProviderGemini:
			m.APIKey = os.Getenv("GEMINI_API_KEY")
		case m.Provider == ProviderOpenAI:
			m.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		c.LLM.Models[name] = m
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must have positive width and height")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive")
	}
	if c.Agent.MaxConsecutiveRetries <= 0 {
		return fmt.Errorf("agent.max_consecutive_retries must be a positive integer")
	}
	if c.Agent.HumanReplyTimeout < 0 {
		return fmt.Errorf("agent.human_reply_timeout cannot be negative")
	}
	switch strings.ToLower(c.Agent.PlannerTier) {
	case "fast", "powerful":
	default:
		return fmt.Errorf("agent.planner_tier must be 'fast' or 'powerful', got %q", c.Agent.PlannerTier)
	}

	switch c.Vision.Provider {
	case VisionProviderHTTP:
		if c.Vision.Endpoint == "" {
			return fmt.Errorf("vision.endpoint is required for the http provider")
		}
	case VisionProviderLLM:
		if c.Vision.Model != "" {
			if _, ok := c.LLM.Models[c.Vision.Model]; !ok {
				return fmt.Errorf("vision.model %q is not defined under llm.models", c.Vision.Model)
			}
		}
	default:
		return fmt.Errorf("unsupported vision.provider: %q", c.Vision.Provider)
	}
	if c.Vision.RateLimitPerSecond < 0 {
		return fmt.Errorf("vision.rate_limit_per_second cannot be negative")
	}

	for name, m := range c.LLM.Models {
		switch m.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("llm.models.%s: unsupported provider %q", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("llm.models.%s: model is required", name)
		}
	}
	return nil
}
