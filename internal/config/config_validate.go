// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validatePresence,
		c.validateDirectory,
		c.validateNATS,
		c.validateSecurity,
		c.validateSMTP,
		c.validateChat,
		c.validateGateway,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.PublicURL != "" {
		if err := validateURLScheme(c.Server.PublicURL, "PUBLIC_URL", "http", "https"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := validateURLScheme(c.Database.URL, "DATABASE_URL", "postgres", "postgresql"); err != nil {
		return err
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be at least 1")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DATABASE_MIN_CONNS must be between 0 and DATABASE_MAX_CONNS")
	}
	return nil
}

// validatePresence requires REDIS_URL only for the redis backend.
func (c *Config) validatePresence() error {
	switch c.Presence.Backend {
	case "memory":
		return nil
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when PRESENCE_BACKEND=redis")
		}
		return validateURLScheme(c.Redis.URL, "REDIS_URL", "redis", "rediss")
	default:
		return fmt.Errorf("PRESENCE_BACKEND must be one of: memory, redis")
	}
}

func (c *Config) validateDirectory() error {
	if c.Directory.CacheSize <= 0 {
		return fmt.Errorf("DIRECTORY_CACHE_SIZE must be positive")
	}
	if c.Directory.CacheTTL <= 0 || c.Directory.CacheTTL > 10*time.Minute {
		return fmt.Errorf("DIRECTORY_CACHE_TTL must be between 1ns and 10m")
	}
	return nil
}

// NATS limit constants
const (
	natsMinMemory      = 64 * 1024 * 1024 // 64MB
	natsMinStore       = 64 * 1024 * 1024 // 64MB
	natsMaxRetention   = 365
	natsMaxSubscribers = 32
)

// validateNATS validates NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateURLScheme(c.NATS.URL, "NATS_URL", "nats", "tls", "ws", "wss"); err != nil {
		return err
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
		}
		if c.NATS.MaxMemory < natsMinMemory {
			return fmt.Errorf("NATS_MAX_MEMORY must be at least 64MB (67108864 bytes)")
		}
		if c.NATS.MaxStore < natsMinStore {
			return fmt.Errorf("NATS_MAX_STORE must be at least 64MB (67108864 bytes)")
		}
	}
	if c.NATS.RetentionDays < 1 || c.NATS.RetentionDays > natsMaxRetention {
		return fmt.Errorf("NATS_RETENTION_DAYS must be between 1 and 365")
	}
	if c.NATS.StreamName == "" || strings.ContainsAny(c.NATS.StreamName, ". *>") {
		return fmt.Errorf("NATS_STREAM_NAME must be non-empty and contain no '.', '*', '>' or spaces")
	}
	if c.NATS.DurableName == "" {
		return fmt.Errorf("NATS_DURABLE_NAME is required")
	}
	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > natsMaxSubscribers {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and 32")
	}
	if c.NATS.MaxDeliver < 1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be at least 1")
	}
	return nil
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
	minJWTSecretLength   = 32
)

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET is required and must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}

	// Wildcard CORS with bearer tokens lets any site drive an authenticated socket.
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed when ENVIRONMENT=production. " +
			"Set specific origins: CORS_ORIGINS=https://yourdomain.com,https://app.yourdomain.com")
	}

	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS returns true if CORS allows any origin.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

func (c *Config) validateSMTP() error {
	if !c.SMTP.Enabled() {
		return nil
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
	}
	if c.SMTP.From == "" || !strings.Contains(c.SMTP.From, "@") {
		return fmt.Errorf("SMTP_FROM must be a valid address when SMTP_HOST is set")
	}
	if c.SMTP.Username != "" && c.SMTP.Password == "" {
		return fmt.Errorf("SMTP_PASSWORD is required when SMTP_USERNAME is set")
	}
	return nil
}

func (c *Config) validateChat() error {
	if c.Chat.MaxPageSize < 1 {
		return fmt.Errorf("CHAT_MAX_PAGE_SIZE must be at least 1")
	}
	if c.Chat.DefaultPageSize < 1 || c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		return fmt.Errorf("CHAT_DEFAULT_PAGE_SIZE must be between 1 and CHAT_MAX_PAGE_SIZE")
	}
	return nil
}

func (c *Config) validateGateway() error {
	if !strings.HasPrefix(c.Gateway.Path, "/") {
		return fmt.Errorf("GATEWAY_PATH must start with '/'")
	}
	if c.Gateway.SendBuffer < 1 {
		return fmt.Errorf("GATEWAY_SEND_BUFFER must be at least 1")
	}
	if c.Gateway.EventsPerSecond <= 0 || c.Gateway.EventBurst < 1 {
		return fmt.Errorf("GATEWAY_EVENTS_PER_SECOND and GATEWAY_EVENT_BURST must be positive")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// IsProduction returns true if ENVIRONMENT is production or prod.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// IsDevelopment returns true unless running in production.
func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

// validateURLScheme checks rawURL parses with one of the allowed schemes and a host.
func validateURLScheme(rawURL, fieldName string, schemes ...string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	ok := false
	for _, s := range schemes {
		if parsedURL.Scheme == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%s scheme must be one of %s, got: %q", fieldName, strings.Join(schemes, ", "), parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}
