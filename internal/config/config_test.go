package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Browser.WaitTimeout)
	assert.Equal(t, 5*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, time.Second, cfg.Browser.ResizeSettle)
	assert.Equal(t, 3000, cfg.Browser.MaxScreenshotHeight)
	assert.Equal(t, time.Minute, cfg.Browser.CaptureTimeout)
	assert.False(t, cfg.Server.BlockPrivateTargets)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.StandardModel)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.HasAPIKey())
}

func TestLoad_File(t *testing.T) {
	content := `
server:
  port: 8080
browser:
  wait_timeout: 30s
  axe_script_path: /opt/axe.min.js
logger:
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Browser.WaitTimeout)
	assert.Equal(t, "/opt/axe.min.js", cfg.Browser.AxeScriptPath)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 5*time.Second, cfg.Browser.SettleDelay)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("A11Y_SERVER_PORT", "9090")
	t.Setenv("A11Y_BROWSER_SETTLE_DELAY", "2s")
	t.Setenv("GEMINI_API_KEY", "  test-key  ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.True(t, cfg.HasAPIKey())
}

func TestLoad_PrefixedAPIKeyWins(t *testing.T) {
	t.Setenv("A11Y_LLM_API_KEY", "prefixed")
	t.Setenv("GEMINI_API_KEY", "bare")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, field: "server.port"},
		{name: "zero wait", mutate: func(c *Config) { c.Browser.WaitTimeout = 0 }, field: "browser.wait_timeout"},
		{name: "zero settle", mutate: func(c *Config) { c.Browser.SettleDelay = 0 }, field: "browser.settle_delay"},
		{name: "zero capture", mutate: func(c *Config) { c.Browser.CaptureTimeout = 0 }, field: "browser.capture_timeout"},
		{name: "zero height", mutate: func(c *Config) { c.Browser.MaxScreenshotHeight = 0 }, field: "browser.max_screenshot_height"},
		{name: "no axe source", mutate: func(c *Config) { c.Browser.AxeScriptURL = "" }, field: "browser.axe_script_url"},
		{name: "blank model", mutate: func(c *Config) { c.LLM.StandardModel = " " }, field: "llm.standard_model"},
		{name: "temperature", mutate: func(c *Config) { c.LLM.Temperature = 3 }, field: "llm.temperature"},
		{name: "log format", mutate: func(c *Config) { c.Logger.Format = "xml" }, field: "logger.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Contains(t, err.Error(), "config error")
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("A11Y_BROWSER_WAIT_TIMEOUT", "-1s")

	_, err := Load("")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
