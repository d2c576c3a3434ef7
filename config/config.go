// Package config loads the engine's YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the overall application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Cache  CacheConfig  `yaml:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
}

// StoreConfig holds the document store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig tunes the status-cache coordinator windows.
type CacheConfig struct {
	FreshnessSeconds      int `yaml:"freshness_seconds"`
	ThrottleSeconds       int `yaml:"throttle_seconds"`
	BackgroundGateMinutes int `yaml:"background_gate_minutes"`
}

// Freshness returns the cache-hit window (0 means library default).
func (c CacheConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessSeconds) * time.Second
}

// Throttle returns the per-key refresh throttle window.
func (c CacheConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// BackgroundGate returns the forced-refresh-after-resume window.
func (c CacheConfig) BackgroundGate() time.Duration {
	return time.Duration(c.BackgroundGateMinutes) * time.Minute
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Path: "jimpitan.db"},
	}
}

// Load reads the configuration from the given path, filling defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "jimpitan.db"
	}
	return cfg, nil
}
