package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv removes every variable the config reads so tests start clean.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "GEMINI_API_KEY", "GOOGLE_API_KEY", "VEO_API_KEY",
		"VEO_MODEL", "UPSTREAM_BASE_URL", "UPSTREAM_TIMEOUT",
		"PUBLIC_BASE_URL", "POLL_INTERVAL", "MAX_POLL_ATTEMPTS",
		"OPERATION_TTL", "ARCHIVE_DIR", "S3_BUCKET", "S3_REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "veo-3.0-generate-preview", cfg.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", cfg.UpstreamBaseURL)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 300, cfg.MaxPollAttempts)
	assert.Equal(t, time.Duration(0), cfg.OperationTTL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingCredentialIsNotAnError(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Configured())
	assert.Empty(t, cfg.APIKey())
}

func TestAPIKey_FallbackChain(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "gemini key wins",
			env: map[string]string{
				"GEMINI_API_KEY": "gemini-key",
				"GOOGLE_API_KEY": "google-key",
				"VEO_API_KEY":    "veo-key",
			},
			want: "gemini-key",
		},
		{
			name: "google key is second",
			env: map[string]string{
				"GOOGLE_API_KEY": "google-key",
				"VEO_API_KEY":    "veo-key",
			},
			want: "google-key",
		},
		{
			name: "veo key is last",
			env: map[string]string{
				"VEO_API_KEY": "veo-key",
			},
			want: "veo-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.APIKey())
			assert.True(t, cfg.Configured())
		})
	}
}

func TestS3Enabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.S3Enabled())

	cfg.S3Bucket = "bucket"
	assert.False(t, cfg.S3Enabled())

	cfg.S3Region = "eu-west-1"
	assert.True(t, cfg.S3Enabled())
}

func TestNewLogger_Formats(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		cfg := &Config{LogFormat: "json", LogLevel: "debug"}
		logger := cfg.NewLogger()
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(nil, slog.LevelDebug))
	})

	t.Run("text format", func(t *testing.T) {
		cfg := &Config{LogFormat: "text", LogLevel: "warn"}
		logger := cfg.NewLogger()
		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(nil, slog.LevelInfo))
		assert.True(t, logger.Enabled(nil, slog.LevelWarn))
	})
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:         8080,
		GeminiAPIKey: "super-secret",
		Model:        "veo-3.0-generate-preview",
	}

	var buf bytes.Buffer
	buf.WriteString(cfg.String())

	assert.NotContains(t, buf.String(), "super-secret")
	assert.Contains(t, buf.String(), "veo-3.0-generate-preview")
}
