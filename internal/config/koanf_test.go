// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Chat.DefaultPageSize != 50 {
		t.Errorf("Chat.DefaultPageSize = %d, want 50", cfg.Chat.DefaultPageSize)
	}
	if cfg.Chat.MaxPageSize != 100 {
		t.Errorf("Chat.MaxPageSize = %d, want 100", cfg.Chat.MaxPageSize)
	}
	if cfg.Gateway.Path != "/chat" {
		t.Errorf("Gateway.Path = %q, want /chat", cfg.Gateway.Path)
	}
	if cfg.Gateway.EventsPerSecond != 20 || cfg.Gateway.EventBurst != 40 {
		t.Errorf("Gateway rate = %v/%d, want 20/40", cfg.Gateway.EventsPerSecond, cfg.Gateway.EventBurst)
	}
	if cfg.Presence.Backend != "memory" {
		t.Errorf("Presence.Backend = %q, want memory", cfg.Presence.Backend)
	}
	if cfg.NATS.StreamName != "NOTIFICATIONS" {
		t.Errorf("NATS.StreamName = %q, want NOTIFICATIONS", cfg.NATS.StreamName)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled by default")
	}
	if cfg.Security.JWTSecret != "" {
		t.Error("JWTSecret must not have a default")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"DATABASE_URL", "database.url"},
		{"NATS_EMBEDDED", "nats.embedded_server"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"PRESENCE_BACKEND", "presence.backend"},
		{"DIRECTORY_CACHE_TTL", "directory.cache_ttl"},
		{"SMTP_FROM_NAME", "smtp.from_name"},
		{"GATEWAY_EVENT_BURST", "gateway.event_burst"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty string", got)
		}
	})

	t.Run("CONFIG_PATH takes precedence", func(t *testing.T) {
		if err := os.WriteFile("config.yaml", []byte("server: {}"), 0o600); err != nil {
			t.Fatal(err)
		}
		defer os.Remove("config.yaml")

		custom := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(custom, []byte("server: {}"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigPathEnvVar, custom)

		if got := findConfigFile(); got != custom {
			t.Errorf("findConfigFile() = %q, want %q", got, custom)
		}
	})

	t.Run("missing CONFIG_PATH falls back to defaults", func(t *testing.T) {
		if err := os.WriteFile("config.yaml", []byte("server: {}"), 0o600); err != nil {
			t.Fatal(err)
		}
		defer os.Remove("config.yaml")
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")

		if got := findConfigFile(); got != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", got)
		}
	})
}

func TestLoadEnvVars(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET", testJWTSecret)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NATS_ACK_WAIT", "45s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.NATS.AckWait != 45*time.Second {
		t.Errorf("NATS.AckWait = %v, want 45s", cfg.NATS.AckWait)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0 (default)", cfg.Server.Host)
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())

	content := `
server:
  port: 8888
security:
  jwt_secret: "` + testJWTSecret + `"
presence:
  backend: redis
redis:
  url: redis://cache.internal:6379/1
logging:
  level: warn
`
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want env override 7000", cfg.Server.Port)
	}
	if cfg.Presence.Backend != "redis" || cfg.Redis.URL != "redis://cache.internal:6379/1" {
		t.Errorf("presence = %+v redis = %+v", cfg.Presence, cfg.Redis)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"missing jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad database scheme", func(c *Config) { c.Database.URL = "mysql://x/y" }, "DATABASE_URL"},
		{"redis backend without url", func(c *Config) {
			c.Presence.Backend = "redis"
			c.Redis.URL = ""
		}, "REDIS_URL"},
		{"unknown presence backend", func(c *Config) { c.Presence.Backend = "etcd" }, "PRESENCE_BACKEND"},
		{"zero directory cache", func(c *Config) { c.Directory.CacheSize = 0 }, "DIRECTORY_CACHE_SIZE"},
		{"bad nats url", func(c *Config) { c.NATS.URL = "http://nats:4222" }, "NATS_URL"},
		{"nats disabled skips nats checks", func(c *Config) {
			c.NATS.Enabled = false
			c.NATS.URL = ""
		}, ""},
		{"stream name with dot", func(c *Config) { c.NATS.StreamName = "a.b" }, "NATS_STREAM_NAME"},
		{"wildcard cors in production", func(c *Config) { c.Server.Environment = "production" }, "CORS_ORIGINS"},
		{"smtp without from", func(c *Config) { c.SMTP.Host = "smtp.example.com" }, "SMTP_FROM"},
		{"default page size above max", func(c *Config) { c.Chat.DefaultPageSize = 200 }, "CHAT_DEFAULT_PAGE_SIZE"},
		{"gateway path", func(c *Config) { c.Gateway.Path = "chat" }, "GATEWAY_PATH"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"rate limit disabled skips bounds", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWTSecret = testJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	cfg := defaultConfig()
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
	cfg.Server.Environment = "PROD"
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("PROD should be treated as production")
	}
}
