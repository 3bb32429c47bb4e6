// Package bootstrap provides dependency initialization for the Veo relay API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/example/veo-relay/internal/config"
	"github.com/example/veo-relay/internal/operation"
	"github.com/example/veo-relay/internal/storage"
	"github.com/example/veo-relay/internal/veo"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	OperationService *operation.Service
}

// NewDependencies creates and initializes all dependencies for the application.
// A missing upstream credential is not an error: the service starts with
// generation disabled and status/health endpoints working.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize the upstream client when a credential is available
	var client veo.Client
	if cfg.Configured() {
		httpClient, err := veo.NewClient(cfg.Model,
			veo.WithAPIKey(cfg.APIKey()),
			veo.WithBaseURL(cfg.UpstreamBaseURL),
			veo.WithTimeout(cfg.UpstreamTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create veo client: %w", err)
		}
		client = httpClient
	} else {
		logger.Warn("no upstream credential configured, generation requests will be rejected")
	}

	// Initialize the operation store
	store := operation.NewMemoryStore()

	// Initialize the optional artifact archiver
	svcOpts := []operation.ServiceOption{
		operation.WithPollInterval(cfg.PollInterval),
		operation.WithMaxPollAttempts(cfg.MaxPollAttempts),
	}
	archiver, err := initArchiver(cfg, logger)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		svcOpts = append(svcOpts, operation.WithArchiver(archiver))
	}

	// Initialize the tracking service
	svc := operation.NewService(store, client, logger, svcOpts...)
	svc.StartJanitor(cfg.OperationTTL, 0)

	return &Dependencies{
		OperationService: svc,
	}, nil
}

// initArchiver creates the artifact archiver based on configuration.
// Returns nil when archival is disabled.
func initArchiver(cfg *config.Config, logger *slog.Logger) (storage.Archiver, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Archiver, err := storage.NewS3Archiver(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 archiver: %w", err)
		}
		logger.Info("S3 archival configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Archiver, nil
	}

	if cfg.ArchiveDir != "" {
		localArchiver, err := storage.NewLocalArchiver(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("create local archiver: %w", err)
		}
		logger.Info("local archival configured",
			slog.String("dir", cfg.ArchiveDir),
		)
		return localArchiver, nil
	}

	return nil, nil
}
