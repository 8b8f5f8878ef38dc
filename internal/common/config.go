// Package common provides shared utilities for the instalog server.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the instalog server.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Database    DatabaseConfig  `toml:"database"`
	Bucket      BucketConfig    `toml:"bucket"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	Auth        AuthConfig      `toml:"auth"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig holds the SQLite database path.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// BucketConfig holds the incident-photo blob store path.
// An empty path means the bucket binding is absent; photo uploads will
// fail with a configuration error until it is set.
type BucketConfig struct {
	Path string `toml:"path"`
}

// RateLimitConfig holds the optional Redis backing store for the
// login rate limiter. An empty address disables the limiter.
type RateLimitConfig struct {
	RedisAddr string `toml:"redis_addr"`
}

// AuthConfig holds the machine-client HMAC pair, the web bootstrap
// secret, and the session token signing secret.
type AuthConfig struct {
	APIToken        string `toml:"api_token"`
	APISecret       string `toml:"api_secret"`
	BootstrapSecret string `toml:"bootstrap_secret"`
	SessionSecret   string `toml:"session_secret"`
	SessionTTL      string `toml:"session_ttl"` // duration string, default "8h"
}

// GetSessionTTL parses and returns the session token lifetime.
func (c *AuthConfig) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 8 * time.Hour
	}
	return d
}

// HmacConfigured reports whether the HMAC pair is fully configured.
// With both values absent the machine path runs unauthenticated (dev mode).
func (c *AuthConfig) HmacConfigured() bool {
	return c.APIToken != "" || c.APISecret != ""
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{Path: "data/instalog.db"},
		Bucket:   BucketConfig{Path: "data/incidents"},
		Auth: AuthConfig{
			SessionTTL: "8h",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("INSTALOG_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("INSTALOG_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("INSTALOG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("INSTALOG_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("INSTALOG_DB_PATH"); path != "" {
		config.Database.Path = path
	}
	if path := os.Getenv("INSTALOG_BUCKET_PATH"); path != "" {
		config.Bucket.Path = path
	}
	if addr := os.Getenv("INSTALOG_REDIS_ADDR"); addr != "" {
		config.RateLimit.RedisAddr = addr
	}

	// Secrets use the names the deployment platform provides.
	if v := os.Getenv("API_TOKEN"); v != "" {
		config.Auth.APIToken = v
	}
	if v := os.Getenv("API_SECRET"); v != "" {
		config.Auth.APISecret = v
	}
	if v := os.Getenv("WEB_LOGIN_PASSWORD"); v != "" {
		config.Auth.BootstrapSecret = v
	}
	if v := os.Getenv("WEB_SESSION_SECRET"); v != "" {
		config.Auth.SessionSecret = v
	}
	if v := os.Getenv("INSTALOG_SESSION_TTL"); v != "" {
		config.Auth.SessionTTL = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
