// Package config handles configuration for browser-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
)

// EnvPrefix prefixes environment overrides, e.g. BROWSER_RUNNER_LOCATE_TIMEOUT=2s.
const EnvPrefix = "BROWSER_RUNNER"

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Locate    LocateConfig    `mapstructure:"locate" yaml:"locate"`
	WebDriver WebDriverConfig `mapstructure:"webdriver" yaml:"webdriver"`
	CDP       CDPConfig       `mapstructure:"cdp" yaml:"cdp"`
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LocateConfig holds the session-wide element lookup defaults.
type LocateConfig struct {
	Strategy               string        `mapstructure:"strategy" yaml:"strategy"`
	Timeout                time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryInterval          time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	AbortOnFailure         bool          `mapstructure:"abort_on_failure" yaml:"abort_on_failure"`
	SuppressNotFoundErrors bool          `mapstructure:"suppress_not_found_errors" yaml:"suppress_not_found_errors"`
}

// Defaults converts the section into session lookup defaults.
func (c LocateConfig) Defaults() (locator.Defaults, error) {
	st, err := core.ParseStrategy(c.Strategy)
	if err != nil {
		return locator.Defaults{}, core.ErrInvalidConfig.WithMessagef("locate.strategy: unknown strategy %q", c.Strategy)
	}
	return locator.Defaults{
		Strategy:               st,
		Timeout:                c.Timeout,
		RetryInterval:          c.RetryInterval,
		AbortOnFailure:         c.AbortOnFailure,
		SuppressNotFoundErrors: c.SuppressNotFoundErrors,
	}, nil
}

// WebDriverConfig configures the W3C WebDriver transport.
type WebDriverConfig struct {
	URL            string                 `mapstructure:"url" yaml:"url"`
	Capabilities   map[string]interface{} `mapstructure:"-" yaml:"capabilities"` // read with yaml.v3, viper folds key case
	RequestTimeout time.Duration          `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64                `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 = unlimited
	ConnectRetry   time.Duration          `mapstructure:"connect_retry" yaml:"connect_retry"`
}

// CDPConfig configures the Chrome DevTools transport.
type CDPConfig struct {
	Headless     bool   `mapstructure:"headless" yaml:"headless"`
	ExecPath     string `mapstructure:"exec_path" yaml:"exec_path"`
	WindowWidth  int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int    `mapstructure:"window_height" yaml:"window_height"`
}

// LoggerConfig configures pkg/logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// RunnerConfig configures script execution.
type RunnerConfig struct {
	Parallelism int  `mapstructure:"parallelism" yaml:"parallelism"` // 0 = sequential
	StopOnFail  bool `mapstructure:"stop_on_fail" yaml:"stop_on_fail"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty = disabled
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Locate --
	v.SetDefault("locate.strategy", string(core.StrategyCSS))
	v.SetDefault("locate.timeout", "5s")
	v.SetDefault("locate.retry_interval", "500ms")
	v.SetDefault("locate.abort_on_failure", false)
	v.SetDefault("locate.suppress_not_found_errors", false)

	// -- WebDriver --
	v.SetDefault("webdriver.url", "http://127.0.0.1:4444")
	v.SetDefault("webdriver.request_timeout", "60s")
	v.SetDefault("webdriver.rate_limit", 0)
	v.SetDefault("webdriver.connect_retry", "30s")

	// -- CDP --
	v.SetDefault("cdp.headless", true)
	v.SetDefault("cdp.exec_path", "")
	v.SetDefault("cdp.window_width", 1280)
	v.SetDefault("cdp.window_height", 800)

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)

	// -- Runner --
	v.SetDefault("runner.parallelism", 0)
	v.SetDefault("runner.stop_on_fail", false)

	// -- Metrics --
	v.SetDefault("metrics.addr", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the defaults with environment overrides applied.
func Default() (*Config, error) {
	cfg, err := fromViper(newViper())
	if err != nil {
		return nil, err
	}
	cfg.WebDriver.Capabilities = DefaultCapabilities()
	return cfg, nil
}

// DefaultCapabilities returns the capabilities used when config.yaml sets none.
func DefaultCapabilities() map[string]interface{} {
	return map[string]interface{}{"browserName": "chrome"}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	caps, err := readCapabilities(path)
	if err != nil {
		return nil, err
	}
	if caps == nil {
		caps = DefaultCapabilities()
	}
	cfg.WebDriver.Capabilities = caps
	return cfg, nil
}

// readCapabilities decodes webdriver.capabilities preserving key case
// (W3C capability names such as browserName are case sensitive).
func readCapabilities(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var raw struct {
		WebDriver struct {
			Capabilities map[string]interface{} `yaml:"capabilities"`
		} `yaml:"webdriver"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, core.ErrInvalidConfig.WithMessagef("failed to parse %s", path).WithCause(err)
	}
	return raw.WebDriver.Capabilities, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default()
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if _, err := core.ParseStrategy(c.Locate.Strategy); err != nil {
		return core.ErrInvalidConfig.WithMessagef("locate.strategy: unknown strategy %q", c.Locate.Strategy)
	}
	if c.Locate.Timeout < 0 {
		return core.ErrInvalidConfig.WithMessage("locate.timeout must not be negative")
	}
	if c.Locate.RetryInterval <= 0 {
		return core.ErrInvalidConfig.WithMessage("locate.retry_interval must be positive")
	}
	if c.Runner.Parallelism < 0 {
		return core.ErrInvalidConfig.WithMessage("runner.parallelism must not be negative")
	}
	if c.WebDriver.RateLimit < 0 {
		return core.ErrInvalidConfig.WithMessage("webdriver.rate_limit must not be negative")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return core.ErrInvalidConfig.WithMessagef("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}
