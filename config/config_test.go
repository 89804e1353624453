package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, []string{"demo-key"}, cfg.Gate.APIKeys)
	assert.True(t, cfg.Logging.IncludeGateLatency)
	assert.Equal(t, 20, cfg.Detection.MaxFailedAuth)

	gate := cfg.GateConfig()
	assert.Equal(t, 100, gate.Global.Limit)
	assert.Equal(t, time.Minute, gate.Global.BlockFor)
	require.Len(t, gate.Routes, 1)
	assert.Equal(t, "/api/transaction", gate.Routes[0].Pattern)
	assert.Equal(t, "api_transaction", gate.Routes[0].Rule.Name)
	assert.Equal(t, 10, gate.Routes[0].Rule.Limit)
	assert.Equal(t, 10*time.Second, gate.Routes[0].Rule.BlockFor)
	assert.True(t, gate.Routes[0].Rule.BlockOnLimit)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinela.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  upstream_url: http://upstream:9000
gate:
  api_keys: [k1, k2]
  limit: 50
  routes:
    - pattern: /api/pay
      limit: 3
      window: 30s
logging:
  include_gate_latency: false
log:
  format: text
`), 0o600))

	t.Setenv("SENTINELA_REDIS_ADDR", "redis:6380")
	t.Setenv("SENTINELA_DETECTION_INTERVAL", "30s")

	cfg, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, "http://upstream:9000", cfg.Server.UpstreamURL)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Gate.APIKeys)
	assert.Equal(t, 50, cfg.Gate.Limit)
	assert.False(t, cfg.Logging.IncludeGateLatency)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Detection.Interval)
	assert.Equal(t, 30*time.Second, cfg.DetectionConfig().Interval)

	require.Len(t, cfg.Gate.Routes, 1)
	assert.Equal(t, RouteRuleConfig{Pattern: "/api/pay", Limit: 3, Window: 30 * time.Second}, cfg.Gate.Routes[0])
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinela.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(New(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad upstream", func(c *Config) { c.Server.UpstreamURL = "not a url" }, "Server.UpstreamURL"},
		{"no keys", func(c *Config) { c.Gate.APIKeys = nil }, "Gate.APIKeys"},
		{"empty key", func(c *Config) { c.Gate.APIKeys = []string{""} }, "Gate.APIKeys[0]"},
		{"zero limit", func(c *Config) { c.Gate.Limit = 0 }, "Gate.Limit"},
		{"route without slash", func(c *Config) { c.Gate.Routes[0].Pattern = "api" }, "Gate.Routes[0].Pattern"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "Storage.Driver"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "Log.Format"},
		{"redis addr", func(c *Config) { c.Redis.Addr = "" }, "Redis.Addr"},
		{"redis disabled", func(c *Config) { c.Redis.Enabled = false; c.Redis.Addr = "" }, ""},
		{"queue without workers", func(c *Config) { c.Logging.Workers = 0 }, "logging.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(New(""))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRouteRuleName(t *testing.T) {
	assert.Equal(t, "api_transaction", routeRuleName("/api/transaction"))
	assert.Equal(t, "api_v1_pay", routeRuleName("/api/v1/pay/"))
	assert.Equal(t, "", routeRuleName("/"))
}
