// Package config provides configuration loading and validation for the auditor.
// Values come from defaults, an optional YAML/JSON file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. A11Y_SERVER_PORT.
const EnvPrefix = "A11Y"

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
}

// ServerConfig configures the web layer.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigin   string        `mapstructure:"allowed_origin" yaml:"allowed_origin"`

	// BlockPrivateTargets rejects audit URLs whose host is loopback, private
	// or otherwise not publicly routable.
	BlockPrivateTargets bool `mapstructure:"block_private_targets" yaml:"block_private_targets"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	ExecPath            string        `mapstructure:"exec_path" yaml:"exec_path"`
	WaitTimeout         time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ResizeSettle        time.Duration `mapstructure:"resize_settle" yaml:"resize_settle"`
	CaptureTimeout      time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
	MaxScreenshotHeight int           `mapstructure:"max_screenshot_height" yaml:"max_screenshot_height"`
	AxeScriptURL        string        `mapstructure:"axe_script_url" yaml:"axe_script_url"`
	AxeScriptPath       string        `mapstructure:"axe_script_path" yaml:"axe_script_path"`
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey        string  `mapstructure:"api_key" yaml:"-"`
	StandardModel string  `mapstructure:"standard_model" yaml:"standard_model"`
	AdvancedModel string  `mapstructure:"advanced_model" yaml:"advanced_model"`
	Temperature   float32 `mapstructure:"temperature" yaml:"temperature"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Two sequential device runs plus three model calls.
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.block_private_targets", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.wait_timeout", 15*time.Second)
	v.SetDefault("browser.settle_delay", 5*time.Second)
	v.SetDefault("browser.resize_settle", 1*time.Second)
	v.SetDefault("browser.capture_timeout", 60*time.Second)
	v.SetDefault("browser.max_screenshot_height", 3000)
	v.SetDefault("browser.axe_script_url", "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js")
	v.SetDefault("browser.axe_script_path", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.standard_model", "gemini-2.5-flash")
	v.SetDefault("llm.advanced_model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.2)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bare variable is what the deployment environment provides.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY")
	return v
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith reads configuration into an existing viper instance, which lets
// callers bind command-line flags first.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// ValidationError describes one invalid configuration value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config error: '%s' %s", e.Field, e.Message)
}

// Validate checks that the configuration has valid values. A missing API key
// is not an error here; it is reported when the auditor is built.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be between 0 and 65535"})
	}
	durations := map[string]time.Duration{
		"browser.wait_timeout":    c.Browser.WaitTimeout,
		"browser.settle_delay":    c.Browser.SettleDelay,
		"browser.resize_settle":   c.Browser.ResizeSettle,
		"browser.capture_timeout": c.Browser.CaptureTimeout,
	}
	for _, field := range []string{"browser.wait_timeout", "browser.settle_delay", "browser.resize_settle", "browser.capture_timeout"} {
		if durations[field] <= 0 {
			errs = append(errs, &ValidationError{Field: field, Message: "must be positive"})
		}
	}
	if c.Browser.MaxScreenshotHeight <= 0 {
		errs = append(errs, &ValidationError{Field: "browser.max_screenshot_height", Message: "must be positive"})
	}
	if c.Browser.AxeScriptURL == "" && c.Browser.AxeScriptPath == "" {
		errs = append(errs, &ValidationError{Field: "browser.axe_script_url", Message: "or 'browser.axe_script_path' is required"})
	}
	if strings.TrimSpace(c.LLM.StandardModel) == "" {
		errs = append(errs, &ValidationError{Field: "llm.standard_model", Message: "must not be empty"})
	}
	if strings.TrimSpace(c.LLM.AdvancedModel) == "" {
		errs = append(errs, &ValidationError{Field: "llm.advanced_model", Message: "must not be empty"})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ValidationError{Field: "llm.temperature", Message: "must be between 0 and 2"})
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		errs = append(errs, &ValidationError{Field: "logger.format", Message: "must be 'console' or 'json'"})
	}

	return errors.Join(errs...)
}

// HasAPIKey reports whether a Gemini key is configured.
func (c *Config) HasAPIKey() bool {
	return c.LLM.APIKey != ""
}
