package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Database  DatabaseConfig
	Sandbox   SandboxConfig
	Resolver  ResolverConfig
	Download  DownloadConfig
	Seed      SeedConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"3000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string `envconfig:"DATABASE_PATH" default:"./data/database.sqlite"`
}

// SandboxConfig bounds script execution.
type SandboxConfig struct {
	SessionTimeout time.Duration `envconfig:"SANDBOX_SESSION_TIMEOUT" default:"30s"`
	HTTPTimeout    time.Duration `envconfig:"SANDBOX_HTTP_TIMEOUT" default:"15s"`
	PollInterval   time.Duration `envconfig:"SANDBOX_POLL_INTERVAL" default:"200ms"`
	PollCeiling    time.Duration `envconfig:"SANDBOX_POLL_CEILING" default:"3s"`
	PollBackoff    float64       `envconfig:"SANDBOX_POLL_BACKOFF" default:"1.0"`
	MaxCallStack   int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	HTTPRateLimit  float64       `envconfig:"SANDBOX_HTTP_RPS" default:"0"`
	UserAgent      string        `envconfig:"SANDBOX_USER_AGENT"`
}

// ResolverConfig selects fallback policies.
type ResolverConfig struct {
	SearchPolicy      string `envconfig:"SEARCH_POLICY" default:"fallback"`
	SearchConcurrency int    `envconfig:"SEARCH_CONCURRENCY" default:"4"`
}

// DownloadConfig holds download queue configuration.
type DownloadConfig struct {
	Dir              string        `envconfig:"DOWNLOAD_DIR" default:"./data/downloads"`
	MaxConcurrent    int           `envconfig:"MAX_DOWNLOAD_CONCURRENT" default:"3"`
	Timeout          time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"60s"`
	ProgressInterval time.Duration `envconfig:"DOWNLOAD_PROGRESS_INTERVAL" default:"500ms"`
}

// SeedConfig points at a directory of scripts imported on startup.
type SeedConfig struct {
	Dir string `envconfig:"SOURCES_SEED_DIR"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the engine cannot honor.
func (c *Config) Validate() error {
	switch c.Resolver.SearchPolicy {
	case "fallback", "first", "aggregate":
	default:
		return fmt.Errorf("invalid SEARCH_POLICY %q: want fallback, first or aggregate", c.Resolver.SearchPolicy)
	}
	if c.Sandbox.SessionTimeout <= 0 {
		return fmt.Errorf("SANDBOX_SESSION_TIMEOUT must be positive")
	}
	if c.Sandbox.PollInterval <= 0 || c.Sandbox.PollCeiling < c.Sandbox.PollInterval {
		return fmt.Errorf("SANDBOX_POLL_INTERVAL must be positive and not exceed SANDBOX_POLL_CEILING")
	}
	if c.Sandbox.PollBackoff < 1 {
		return fmt.Errorf("SANDBOX_POLL_BACKOFF must be >= 1")
	}
	if c.Download.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_DOWNLOAD_CONCURRENT must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Database: DatabaseConfig{
			Path: "./data/database.sqlite",
		},
		Sandbox: SandboxConfig{
			SessionTimeout: 30 * time.Second,
			HTTPTimeout:    15 * time.Second,
			PollInterval:   200 * time.Millisecond,
			PollCeiling:    3 * time.Second,
			PollBackoff:    1.0,
			MaxCallStack:   1024,
		},
		Resolver: ResolverConfig{
			SearchPolicy:      "fallback",
			SearchConcurrency: 4,
		},
		Download: DownloadConfig{
			Dir:              "./data/downloads",
			MaxConcurrent:    3,
			Timeout:          60 * time.Second,
			ProgressInterval: 500 * time.Millisecond,
		},
	}
}
