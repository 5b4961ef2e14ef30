// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package config loads layered configuration via Koanf v2.
//
// Precedence, highest wins: environment variables > config file > defaults.
// Environment variable names map to koanf paths by lowercasing and replacing
// the first underscore with a dot: ESI_USER_AGENT -> esi.user_agent.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetglass/config.yaml",
	"/etc/fleetglass/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration for the Fleetglass server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	ESI      ESIConfig      `koanf:"esi"`
	Poller   PollerConfig   `koanf:"poller"`
	Sessions SessionsConfig `koanf:"sessions"`
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// ESIConfig configures the upstream ESI gateway client.
type ESIConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	UserAgent string        `koanf:"user_agent"`
	Timeout   time.Duration `koanf:"timeout"`

	// MaxRetries bounds retry attempts for transport failures and 502/503/504.
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// ServerErrorCooldown is written into the endpoint cache after retries
	// are exhausted so concurrent pollers back off without shared state.
	ServerErrorCooldown time.Duration `koanf:"server_error_cooldown"`

	// RateLimitNotifyThrottle caps rate-limit notices per user.
	RateLimitNotifyThrottle time.Duration `koanf:"rate_limit_notify_throttle"`

	// RequestsPerSecond paces outbound calls locally, on top of any
	// server-driven cooldowns. 0 disables the pacer.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// PollerConfig configures the per-viewer poll loop.
type PollerConfig struct {
	Interval time.Duration `koanf:"interval"`

	// ErrorInterval is the sleep after a failed cycle. It must never be zero
	// or the loop would spin on a persistently failing upstream.
	ErrorInterval time.Duration `koanf:"error_interval"`
}

// SessionsConfig configures the session time accountant.
type SessionsConfig struct {
	// StaleThreshold is the age beyond which an open session is considered
	// abandoned and auto-closed.
	StaleThreshold time.Duration `koanf:"stale_threshold"`

	// FoldCap discards session deltas at or above this age as corrupt when a
	// join finds a session still open.
	FoldCap time.Duration `koanf:"fold_cap"`
}

// CacheConfig configures the key/value cache store.
type CacheConfig struct {
	// Backend selects the store implementation: memory or badger.
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// Path is the badger directory. Ignored for the memory backend.
	Path string `koanf:"path"`

	// SnapshotTTL bounds how long a fleet snapshot stays diffable.
	SnapshotTTL time.Duration `koanf:"snapshot_ttl"`
}

// DatabaseConfig configures DuckDB persistence.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// SecurityConfig configures the dashboard-facing surface.
type SecurityConfig struct {
	// ViewerTokenSecret verifies the signed viewer tokens presented on the
	// websocket endpoint. Token issuance happens elsewhere.
	ViewerTokenSecret string `koanf:"viewer_token_secret" validate:"required,min=32"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the zerolog pipeline.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns built-in defaults. These are overridden by the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3414,
			Timeout: 30 * time.Second,
		},
		ESI: ESIConfig{
			BaseURL:                 "https://esi.evetech.net/latest",
			UserAgent:               "fleetglass (fleet dashboard)",
			Timeout:                 10 * time.Second,
			MaxRetries:              3,
			RetryBaseDelay:          300 * time.Millisecond,
			ServerErrorCooldown:     2 * time.Minute,
			RateLimitNotifyThrottle: 2 * time.Second,
			RequestsPerSecond:       10,
		},
		Poller: PollerConfig{
			Interval:      5 * time.Second,
			ErrorInterval: 5 * time.Second,
		},
		Sessions: SessionsConfig{
			StaleThreshold: 12 * time.Hour,
			FoldCap:        24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:     "badger",
			Path:        "/data/fleetglass/cache",
			SnapshotTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path: "/data/fleetglass/fleetglass.duckdb",
		},
		Security: SecurityConfig{
			ViewerTokenSecret: "",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks struct-level constraints via go-playground/validator.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
