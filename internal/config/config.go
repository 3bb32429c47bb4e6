// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Upstream credential. The first non-empty of GEMINI_API_KEY,
	// GOOGLE_API_KEY and VEO_API_KEY is used. A missing credential does not
	// prevent startup; generation endpoints report a not-configured error.
	GeminiAPIKey string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	GoogleAPIKey string `env:"GOOGLE_API_KEY" json:"-"` // Masked in JSON
	VeoAPIKey    string `env:"VEO_API_KEY" json:"-"`    // Masked in JSON

	// Upstream settings
	Model           string        `env:"VEO_MODEL, default=veo-3.0-generate-preview" json:"model"`
	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL, default=https://generativelanguage.googleapis.com/v1beta" json:"upstream_base_url"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT, default=30s" json:"upstream_timeout"`

	// PublicBaseURL, when set, is used to build absolute client-facing
	// links to the relay's own video proxy endpoint.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`

	// Polling settings
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=1s" json:"poll_interval"`
	MaxPollAttempts int           `env:"MAX_POLL_ATTEMPTS, default=300" json:"max_poll_attempts"`

	// OperationTTL enables the retention janitor when non-zero: terminal
	// operations older than the TTL are evicted from the store.
	OperationTTL time.Duration `env:"OPERATION_TTL" json:"operation_ttl,omitempty"`

	// Artifact archival settings. Upstream artifacts expire on the
	// provider side, so operators may keep a copy in S3 or on disk.
	ArchiveDir         string `env:"ARCHIVE_DIR" json:"archive_dir,omitempty"`
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`  // "debug", "info", "warn", "error"
}

// APIKey returns the upstream credential, resolved through the fallback
// chain GEMINI_API_KEY, GOOGLE_API_KEY, VEO_API_KEY.
func (c *Config) APIKey() string {
	for _, key := range []string{c.GeminiAPIKey, c.GoogleAPIKey, c.VeoAPIKey} {
		if key != "" {
			return key
		}
	}
	return ""
}

// Configured returns true if an upstream credential is available.
func (c *Config) Configured() bool {
	return c.APIKey() != ""
}

// S3Enabled returns true if S3 archival configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Model: %s, UpstreamBaseURL: %s, PollInterval: %s, MaxPollAttempts: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s, Configured: %t}",
		c.Port,
		c.Model,
		c.UpstreamBaseURL,
		c.PollInterval,
		c.MaxPollAttempts,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
		c.Configured(),
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
