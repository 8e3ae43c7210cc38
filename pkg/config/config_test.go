package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
locate:
  strategy: xpath
  timeout: 2s
  retry_interval: 50ms
  abort_on_failure: true
webdriver:
  url: http://grid:4444/wd/hub
  capabilities:
    browserName: firefox
  rate_limit: 20
runner:
  parallelism: 4
  stop_on_fail: true
logger:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "xpath", cfg.Locate.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Locate.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Locate.RetryInterval)
	assert.True(t, cfg.Locate.AbortOnFailure)
	assert.False(t, cfg.Locate.SuppressNotFoundErrors)
	assert.Equal(t, "http://grid:4444/wd/hub", cfg.WebDriver.URL)
	assert.Equal(t, "firefox", cfg.WebDriver.Capabilities["browserName"])
	assert.Equal(t, 20.0, cfg.WebDriver.RateLimit)
	assert.Equal(t, 4, cfg.Runner.Parallelism)
	assert.True(t, cfg.Runner.StopOnFail)
	assert.Equal(t, "json", cfg.Logger.Format)

	// untouched keys keep their defaults
	assert.Equal(t, 60*time.Second, cfg.WebDriver.RequestTimeout)
	assert.Equal(t, 1280, cfg.CDP.WindowWidth)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown strategy", "locate:\n  strategy: telepathy\n"},
		{"negative timeout", "locate:\n  timeout: -1s\n"},
		{"zero interval", "locate:\n  retry_interval: 0s\n"},
		{"negative parallelism", "runner:\n  parallelism: -2\n"},
		{"bad log format", "logger:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLoadFromDir_Defaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, string(core.StrategyCSS), cfg.Locate.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Locate.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Locate.RetryInterval)
	assert.Equal(t, "http://127.0.0.1:4444", cfg.WebDriver.URL)
	assert.True(t, cfg.CDP.Headless)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 0, cfg.Runner.Parallelism)
	assert.Equal(t, DefaultCapabilities(), cfg.WebDriver.Capabilities)
}

func TestLoadFromDir_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", "locate:\n  timeout: 750ms\n")

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Locate.Timeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BROWSER_RUNNER_LOCATE_TIMEOUT", "3s")
	t.Setenv("BROWSER_RUNNER_WEBDRIVER_URL", "http://env:9515")

	path := writeConfig(t, t.TempDir(), "config.yaml", "locate:\n  timeout: 1s\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Locate.Timeout)
	assert.Equal(t, "http://env:9515", cfg.WebDriver.URL)
}

func TestLocateConfig_Defaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	d, err := cfg.Locate.Defaults()
	require.NoError(t, err)
	assert.Equal(t, core.StrategyCSS, d.Strategy)
	assert.Equal(t, 5*time.Second, d.Timeout)
	assert.Equal(t, 500*time.Millisecond, d.RetryInterval)
	assert.False(t, d.AbortOnFailure)

	_, err = LocateConfig{Strategy: "sonar"}.Defaults()
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}
