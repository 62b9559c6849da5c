package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/simlegate/onstomp/stomp/log"
)

// Config holds the fakestomp runtime settings.
type Config struct {
	Addr            string
	Path            string
	MetricsPath     string
	ServerName      string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings used when neither file, env, nor flags
// override them.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:61614",
		Path:            "/stomp",
		MetricsPath:     "/metrics",
		ServerName:      "fakestomp/1.0",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the settings before the server starts.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path %q must start with /", c.Path)
	}
	if c.MetricsPath != "" {
		if !strings.HasPrefix(c.MetricsPath, "/") {
			return fmt.Errorf("metrics path %q must start with /", c.MetricsPath)
		}
		if c.MetricsPath == c.Path {
			return fmt.Errorf("metrics path and broker path are both %q", c.Path)
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// FileConfig mirrors Config with string durations for TOML.
type FileConfig struct {
	Addr            string `toml:"addr"`
	Path            string `toml:"path"`
	MetricsPath     string `toml:"metrics_path"`
	ServerName      string `toml:"server_name"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig copies non-empty file values into cfg, skipping settings
// whose flag was set on the command line.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", fc.Addr, &cfg.Addr)
	s.setString("path", fc.Path, &cfg.Path)
	s.setString("metrics-path", fc.MetricsPath, &cfg.MetricsPath)
	s.setString("server-name", fc.ServerName, &cfg.ServerName)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	return s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout)
}

// ApplyEnvConfig applies FAKESTOMP_* environment variables. They override the
// file but not explicit flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", os.Getenv("FAKESTOMP_ADDR"), &cfg.Addr)
	s.setString("path", os.Getenv("FAKESTOMP_PATH"), &cfg.Path)
	s.setString("metrics-path", os.Getenv("FAKESTOMP_METRICS_PATH"), &cfg.MetricsPath)
	s.setString("log-level", os.Getenv("FAKESTOMP_LOG_LEVEL"), &cfg.LogLevel)
	return s.setDuration("shutdown-timeout", os.Getenv("FAKESTOMP_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout)
}

// FileExists reports whether p exists.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value != "" && !s.changed[flag] {
		*dst = value
	}
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", flag, value, err)
	}
	*dst = d
	return nil
}
