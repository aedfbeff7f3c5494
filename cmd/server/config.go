// Package main provides the collabhub server CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/collabhub/internal/messaging"
)

// envPrefix namespaces every environment override.
const envPrefix = "COLLABHUB_"

// Config represents the server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"        envPrefix:"SERVER_"`
	Metrics       MetricsConfig       `yaml:"metrics"       envPrefix:"METRICS_"`
	Database      DatabaseConfig      `yaml:"database"      envPrefix:"DATABASE_"`
	Auth          AuthConfig          `yaml:"auth"`
	Messaging     MessagingConfig     `yaml:"messaging"     envPrefix:"MESSAGING_"`
	Outbox        OutboxConfig        `yaml:"outbox"        envPrefix:"OUTBOX_"`
	Notifications NotificationsConfig `yaml:"notifications" envPrefix:"NOTIFY_"`
	Log           LogConfig           `yaml:"log"           envPrefix:"LOG_"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	HTTPAddress      string        `yaml:"http_address"        env:"HTTP_ADDRESS"`        // default: :8080
	AllowedOrigins   []string      `yaml:"allowed_origins"     env:"ALLOWED_ORIGINS"`     // CORS origins
	RequestTimeout   time.Duration `yaml:"request_timeout"     env:"REQUEST_TIMEOUT"`     // default: 30s
	RateLimitPerUser int           `yaml:"rate_limit_per_user" env:"RATE_LIMIT_PER_USER"` // requests/minute, default: 120
}

// MetricsConfig contains Prometheus listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Address string `yaml:"address" env:"ADDRESS"` // default: :9090
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"` // default: ./data/collabhub.db
}

// AuthConfig contains bearer token settings. The secret is only read from
// the environment.
type AuthConfig struct {
	JWTSecret string        `yaml:"-"         env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"` // default: 24h
}

// MessagingConfig contains attachment limits.
type MessagingConfig struct {
	MaxAttachmentSize int64    `yaml:"max_attachment_size" env:"MAX_ATTACHMENT_SIZE"` // bytes, default: 10 MiB
	AllowedTypes      []string `yaml:"allowed_types"       env:"ALLOWED_TYPES"`
}

// OutboxConfig contains relay settings.
type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"` // default: 2s
	BatchSize    int           `yaml:"batch_size"    env:"BATCH_SIZE"`    // default: 50
	MaxAttempts  int           `yaml:"max_attempts"  env:"MAX_ATTEMPTS"`  // default: 8
}

// NotificationsConfig contains dispatcher and channel settings. Slack, Teams
// and email are optional mirrors of the stored notification.
type NotificationsConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Slack     WebhookConfig   `yaml:"slack"      envPrefix:"SLACK_"`
	Teams     WebhookConfig   `yaml:"teams"      envPrefix:"TEAMS_"`
	Email     EmailConfig     `yaml:"email"      envPrefix:"EMAIL_"`
}

// RateLimitConfig throttles notification dispatch.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"        env:"ENABLED"`
	MaxPerWindow int           `yaml:"max_per_window" env:"MAX_PER_WINDOW"` // default: 60
	Window       time.Duration `yaml:"window"         env:"WINDOW"`         // default: 1m
}

// WebhookConfig is an incoming webhook target.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Host     string `yaml:"host"     env:"HOST"`
	Port     int    `yaml:"port"     env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"-"        env:"PASSWORD"`
	From     string `yaml:"from"     env:"FROM"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level       string `yaml:"level"       env:"LEVEL"` // debug, info, warn, error
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// LoadConfig loads configuration from a YAML file, then applies
// environment overrides. An empty path starts from defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.RateLimitPerUser == 0 {
		c.Server.RateLimitPerUser = 120
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/collabhub.db"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Messaging.MaxAttachmentSize == 0 {
		c.Messaging.MaxAttachmentSize = messaging.DefaultMaxAttachmentSize
	}
	if len(c.Messaging.AllowedTypes) == 0 {
		c.Messaging.AllowedTypes = append([]string(nil), messaging.DefaultAllowedTypes...)
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 2 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 8
	}
	if c.Notifications.RateLimit.MaxPerWindow == 0 {
		c.Notifications.RateLimit.MaxPerWindow = 60
	}
	if c.Notifications.RateLimit.Window == 0 {
		c.Notifications.RateLimit.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return errors.New("server.http_address is required")
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("server.request_timeout must not be negative")
	}
	if c.Server.RateLimitPerUser < 0 {
		return errors.New("server.rate_limit_per_user must not be negative")
	}
	if c.Messaging.MaxAttachmentSize < 0 {
		return errors.New("messaging.max_attachment_size must not be negative")
	}
	if c.Outbox.MaxAttempts < 1 {
		return errors.New("outbox.max_attempts must be at least 1")
	}
	if c.Outbox.PollInterval < 100*time.Millisecond {
		return errors.New("outbox.poll_interval must be at least 100ms")
	}
	if c.Metrics.Enabled && c.Metrics.Address == c.Server.HTTPAddress {
		return errors.New("metrics.address must differ from server.http_address")
	}
	if e := c.Notifications.Email; e.Host != "" && (e.Port == 0 || e.From == "") {
		return errors.New("notifications.email requires port and from when host is set")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateSecrets checks settings only required to serve traffic.
func (c *Config) ValidateSecrets() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%sJWT_SECRET environment variable is required", envPrefix)
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%sJWT_SECRET must be at least 32 bytes", envPrefix)
	}
	return nil
}

// Policy returns the attachment policy.
func (c *Config) Policy() messaging.Policy {
	return messaging.Policy{
		MaxSize:      c.Messaging.MaxAttachmentSize,
		AllowedTypes: c.Messaging.AllowedTypes,
	}
}

// buildLogger creates the process logger from LogConfig.
func buildLogger(cfg LogConfig, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	if verbose && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
