package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.ChainDepth)
	assert.Equal(t, 5*time.Second, cfg.CloseGrace)
	assert.Equal(t, "data/kmud.bolt", cfg.StorePath())
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "kmud.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
mud_name: Hogwarts
port: 4000
store_driver: sqlite
sqlite_path: /tmp/hogwarts.sqlite
close_grace: 2s
chain_depth: 3
cors_origins:
  - https://example.org
`), 0644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("KMUD_WEB_PORT=9090\n"), 0644))
	t.Setenv("KMUD_PORT", "5000")
	t.Setenv("KMUD_CORS_ORIGINS", "https://a.test,https://b.test")

	t.Cleanup(func() { os.Unsetenv("KMUD_WEB_PORT") })

	cfg, err := LoadConfig(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "Hogwarts", cfg.MudName)
	assert.Equal(t, 5000, cfg.Port, "environment beats the file")
	assert.Equal(t, 9090, cfg.WebPort, ".env fills unset variables")
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "/tmp/hogwarts.sqlite", cfg.StorePath())
	assert.Equal(t, 2*time.Second, cfg.CloseGrace)
	assert.Equal(t, 3, cfg.ChainDepth)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 64, cfg.DrainPerTick, "untouched keys keep defaults")
}

func TestLoadConfigMissingEnvFileIgnored(t *testing.T) {
	cfg, err := LoadConfig("", filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Port, cfg.Port)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [not, a, number]\n"), 0644))
	_, err = LoadConfig(bad, "")
	assert.ErrorContains(t, err, "config: parsing")

	t.Setenv("KMUD_TICK_INTERVAL", "soon")
	_, err = LoadConfig("", "")
	assert.ErrorContains(t, err, "config: environment")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no listeners", func(c *Config) { c.Cleartext = false }, "nothing to listen on"},
		{"half tls pair", func(c *Config) { c.TLSCert = "a.crt" }, "tls_cert and tls_key"},
		{"bad driver", func(c *Config) { c.StoreDriver = "mongo" }, "unknown store_driver"},
		{"no bolt path", func(c *Config) { c.BoltPath = "" }, "bolt_path"},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, "tick_interval"},
		{"zero drain", func(c *Config) { c.DrainPerTick = 0 }, "drain_per_tick"},
		{"negative chain", func(c *Config) { c.ChainDepth = -1 }, "chain_depth"},
		{"no buffer", func(c *Config) { c.OutboundBuffer = 0 }, "outbound_buffer"},
		{"rate without burst", func(c *Config) { c.InputBurst = 0 }, "input_rate"},
		{"archive without dir", func(c *Config) { c.ArchiveInterval = time.Hour; c.ArchiveDir = "" }, "archive_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
