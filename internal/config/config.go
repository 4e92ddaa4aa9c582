// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface exposes read access to the application configuration. Components
// depend on this rather than the concrete Config so tests can substitute
// fixed values.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	LLM() LLMConfig
	Captcha() CaptchaConfig
	Server() ServerConfig
	Jobs() JobsConfig

	SetBrowserHeadless(bool)
	SetAgentMaxSteps(int)
	SetServerAddr(string)
}

// Config is the root configuration object. Fields are private; mutation goes
// through the setters so CLI flag overrides stay in one place.
type Config struct {
	logger  LoggerConfig  `mapstructure:"logger"`
	browser BrowserConfig `mapstructure:"browser"`
	agent   AgentConfig   `mapstructure:"agent"`
	llm     LLMConfig     `mapstructure:"llm"`
	captcha CaptchaConfig `mapstructure:"captcha"`
	server  ServerConfig  `mapstructure:"server"`
	jobs    JobsConfig    `mapstructure:"jobs"`
}

var _ Interface = (*Config)(nil)

// Getters.
func (c *Config) Logger() LoggerConfig   { return c.logger }
func (c *Config) Browser() BrowserConfig { return c.browser }
func (c *Config) Agent() AgentConfig     { return c.agent }
func (c *Config) LLM() LLMConfig         { return c.llm }
func (c *Config) Captcha() CaptchaConfig { return c.captcha }
func (c *Config) Server() ServerConfig   { return c.server }
func (c *Config) Jobs() JobsConfig       { return c.jobs }

// Setters for CLI flag overrides.
func (c *Config) SetBrowserHeadless(headless bool) { c.browser.Headless = headless }
func (c *Config) SetAgentMaxSteps(n int)           { c.agent.MaxSteps = n }
func (c *Config) SetServerAddr(addr string)        { c.server.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
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

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecutablePath    string        `mapstructure:"executable_path" yaml:"executable_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// AgentConfig tunes the mission loop.
type AgentConfig struct {
	MaxSteps         int           `mapstructure:"max_steps" yaml:"max_steps"`
	DefaultTopK      int           `mapstructure:"default_top_k" yaml:"default_top_k"`
	UserInputTimeout time.Duration `mapstructure:"user_input_timeout" yaml:"user_input_timeout"`
	ScreenshotDir    string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// LLMConfig defines the configuration for the reasoning model.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"`
	Model          string        `mapstructure:"model" yaml:"model"`
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout     time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature    float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMin int           `mapstructure:"requests_per_min" yaml:"requests_per_min"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// CaptchaConfig configures the external solver collaborator.
type CaptchaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey       string        `mapstructure:"api_key" yaml:"-"`
	SolveTimeout time.Duration `mapstructure:"solve_timeout" yaml:"solve_timeout"`
}

// ServerConfig holds the HTTP job API settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	SSEKeepAlive    time.Duration `mapstructure:"sse_keep_alive" yaml:"sse_keep_alive"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// JobsConfig selects and configures the job repository backend.
type JobsConfig struct {
	Store    string `mapstructure:"store" yaml:"store"`
	Postgres string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults must always unmarshal and validate.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Agent --
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.default_top_k", 5)
	v.SetDefault("agent.user_input_timeout", "5m")
	v.SetDefault("agent.screenshot_dir", "screenshots")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_min", 30)
	v.SetDefault("llm.max_retries", 3)

	// -- Captcha --
	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.solve_timeout", "180s")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.sse_keep_alive", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_concurrent", 4)

	// -- Jobs --
	v.SetDefault("jobs.store", "memory")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "WEBPILOT_LLM_API_KEY")
	v.BindEnv("captcha.api_key", "WEBPILOT_CAPTCHA_API_KEY")
	v.BindEnv("jobs.postgres_url", "WEBPILOT_POSTGRES_URL")

	var raw struct {
		Logger  LoggerConfig  `mapstructure:"logger"`
		Browser BrowserConfig `mapstructure:"browser"`
		Agent   AgentConfig   `mapstructure:"agent"`
		LLM     LLMConfig     `mapstructure:"llm"`
		Captcha CaptchaConfig `mapstructure:"captcha"`
		Server  ServerConfig  `mapstructure:"server"`
		Jobs    JobsConfig    `mapstructure:"jobs"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := &Config{
		logger:  raw.Logger,
		browser: raw.Browser,
		agent:   raw.Agent,
		llm:     raw.LLM,
		captcha: raw.Captcha,
		server:  raw.Server,
		jobs:    raw.Jobs,
	}

	// Unmarshal does not consult BindEnv for keys absent from the file.
	if cfg.llm.APIKey == "" {
		cfg.llm.APIKey = os.Getenv("WEBPILOT_LLM_API_KEY")
	}
	if cfg.captcha.APIKey == "" {
		cfg.captcha.APIKey = os.Getenv("WEBPILOT_CAPTCHA_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.agent.DefaultTopK <= 0 {
		return fmt.Errorf("agent.default_top_k must be a positive integer")
	}
	if c.agent.UserInputTimeout <= 0 {
		return fmt.Errorf("agent.user_input_timeout must be a positive duration")
	}
	if c.browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	switch c.jobs.Store {
	case "memory":
	case "postgres":
		if c.jobs.Postgres == "" {
			return fmt.Errorf("jobs.postgres_url is required when jobs.store is 'postgres'")
		}
	default:
		return fmt.Errorf("jobs.store must be 'memory' or 'postgres', got %q", c.jobs.Store)
	}
	return nil
}
