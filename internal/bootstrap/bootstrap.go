// Package bootstrap provides dependency initialization for the segmentation server.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/ipusegment/internal/audio"
	"github.com/maauso/ipusegment/internal/config"
	"github.com/maauso/ipusegment/internal/job"
	"github.com/maauso/ipusegment/internal/metrics"
	"github.com/maauso/ipusegment/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *job.SegmentService
	Store   storage.Storage
	Metrics *metrics.Metrics
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	opts := []job.Option{
		job.WithMetrics(m),
		job.WithDefaultParams(cfg.Params()),
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
	}

	if cfg.ConvertInput {
		conv := audio.NewFFmpegConverter(cfg.FFmpegPath)
		if !conv.Available() {
			return nil, fmt.Errorf("CONVERT_INPUT is set: %w", audio.ErrFFmpegNotFound)
		}
		opts = append(opts, job.WithConverter(conv))
		logger.Info("input conversion enabled", slog.String("ffmpeg", cfg.FFmpegPath))
	}

	svc := job.NewSegmentService(job.NewMemoryRepository(), store, logger, opts...)

	return &Dependencies{
		Service: svc,
		Store:   store,
		Metrics: m,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("results_dir", cfg.ResultsDir),
	)
	return localStore, nil
}
