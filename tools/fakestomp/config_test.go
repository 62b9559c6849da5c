package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		expected   func(*Config)
		wantErr    bool
	}{
		{
			name: "applies all values",
			fileConfig: FileConfig{
				Addr:            "0.0.0.0:9000",
				Path:            "/ws",
				MetricsPath:     "/prom",
				ServerName:      "test/2.0",
				LogLevel:        "debug",
				ShutdownTimeout: "1s",
			},
			changed: map[string]bool{},
			expected: func(c *Config) {
				c.Addr = "0.0.0.0:9000"
				c.Path = "/ws"
				c.MetricsPath = "/prom"
				c.ServerName = "test/2.0"
				c.LogLevel = "debug"
				c.ShutdownTimeout = time.Second
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Addr: "0.0.0.0:9000", LogLevel: "debug"},
			changed:    map[string]bool{"addr": true},
			expected: func(c *Config) {
				c.LogLevel = "debug"
			},
		},
		{
			name:       "empty values keep defaults",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			expected:   func(*Config) {},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{ShutdownTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			expected := DefaultConfig()
			tt.expected(&expected)
			assert.Equal(t, expected, cfg)
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fakestomp.toml")
	content := `
addr = "127.0.0.1:7000"
path = "/broker"
log_level = "warn"
shutdown_timeout = "250ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, FileConfig{
		Addr:            "127.0.0.1:7000",
		Path:            "/broker",
		LogLevel:        "warn",
		ShutdownTimeout: "250ms",
	}, fc)

	_, err = LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("addr = "), 0o600))
	_, err = LoadFileConfig(broken)
	require.Error(t, err)
}

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("FAKESTOMP_ADDR", "127.0.0.1:7001")
	t.Setenv("FAKESTOMP_LOG_LEVEL", "error")
	t.Setenv("FAKESTOMP_SHUTDOWN_TIMEOUT", "2s")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnvConfig(&cfg, map[string]bool{"log-level": true}))
	assert.Equal(t, "127.0.0.1:7001", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)

	t.Setenv("FAKESTOMP_SHUTDOWN_TIMEOUT", "later")
	require.Error(t, ApplyEnvConfig(&cfg, map[string]bool{}))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"relative path", func(c *Config) { c.Path = "stomp" }},
		{"relative metrics path", func(c *Config) { c.MetricsPath = "metrics" }},
		{"metrics path collides", func(c *Config) { c.MetricsPath = c.Path }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.MetricsPath = ""
	require.NoError(t, cfg.Validate())
}
