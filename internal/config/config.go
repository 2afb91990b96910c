// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Port        string `envconfig:"PORT" default:"3000"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:""`
	DBPath      string `envconfig:"DB_PATH" default:"./data/codeoracle.db"`

	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	Greeting      string        `envconfig:"GREETING" default:"Welcome! Ask me anything about your codebase."`

	// Nested sections are read with their tag as prefix, e.g. ORACLE_BASE_URL.
	Oracle          OracleConfig          `envconfig:"ORACLE"`
	RateLimit       RateLimitConfig       `envconfig:"RATE_LIMIT"`
	ConversationLog ConversationLogConfig `envconfig:"CONVERSATION_LOG"`
}

// OracleConfig points at the remote question-answering service.
type OracleConfig struct {
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	// RequestTimeout of 0 leaves requests unbounded.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"0s"`
}

// RateLimitConfig controls per-user API throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RPS" default:"5"`
	Burst             int     `envconfig:"BURST" default:"20"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `envconfig:"ENABLED" default:"false"`
	Dir           string `envconfig:"DIR" default:"./data/logs/conversations"`
	GlobalEnabled bool   `envconfig:"GLOBAL_ENABLED" default:"false"`
	GlobalPath    string `envconfig:"GLOBAL_PATH" default:"./data/logs/conversations/all.ndjson"`
	QueueSize     int    `envconfig:"QUEUE_SIZE" default:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.Oracle.BaseURL = strings.TrimRight(cfg.Oracle.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("ORACLE_BASE_URL cannot be empty")
	}
	u, err := url.Parse(c.Oracle.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ORACLE_BASE_URL must be an absolute URL, got %q", c.Oracle.BaseURL)
	}
	if c.Oracle.RequestTimeout < 0 {
		return fmt.Errorf("ORACLE_REQUEST_TIMEOUT must be >= 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
