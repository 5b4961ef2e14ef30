// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECURITY_VIEWER_TOKEN_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3414 {
		t.Errorf("server port = %d, want 3414", cfg.Server.Port)
	}
	if cfg.ESI.BaseURL != "https://esi.evetech.net/latest" {
		t.Errorf("esi base url = %q", cfg.ESI.BaseURL)
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("poller interval = %v, want 5s", cfg.Poller.Interval)
	}
	if cfg.Sessions.StaleThreshold != 12*time.Hour {
		t.Errorf("stale threshold = %v, want 12h", cfg.Sessions.StaleThreshold)
	}
	if cfg.Sessions.FoldCap != 24*time.Hour {
		t.Errorf("fold cap = %v, want 24h", cfg.Sessions.FoldCap)
	}
	if cfg.Cache.Backend != "badger" {
		t.Errorf("cache backend = %q, want badger", cfg.Cache.Backend)
	}
	if cfg.Security.ViewerTokenSecret != testSecret {
		t.Error("viewer token secret not taken from environment")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: 9090
esi:
  user_agent: "fleetglass-test"
security:
  viewer_token_secret: "` + testSecret + `"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.ESI.UserAgent != "fleetglass-test" {
		t.Errorf("user agent = %q, want fleetglass-test", cfg.ESI.UserAgent)
	}
	// Untouched keys keep their defaults.
	if cfg.Poller.ErrorInterval != 5*time.Second {
		t.Errorf("error interval = %v, want default 5s", cfg.Poller.ErrorInterval)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: 9090
security:
  viewer_token_secret: "` + testSecret + `"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want 7070 from environment", cfg.Server.Port)
	}
}

func TestValidationRejectsShortSecret(t *testing.T) {
	t.Setenv("SECURITY_VIEWER_TOKEN_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a viewer token secret under 32 bytes")
	}
}

func TestValidationRejectsBadBackend(t *testing.T) {
	t.Setenv("SECURITY_VIEWER_TOKEN_SECRET", testSecret)
	t.Setenv("CACHE_BACKEND", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an unknown cache backend")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ESI_USER_AGENT", "esi.user_agent"},
		{"SECURITY_RATE_LIMIT_REQS", "security.rate_limit_reqs"},
		{"SERVER_PORT", "server.port"},
		{"LOGGING_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
		{"SERVERLESS_MODE", ""},
	}
	for _, tc := range cases {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
