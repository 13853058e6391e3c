// Package bootstrap provides dependency initialization for the track slicer.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/trackslicer/internal/batch"
	"github.com/maauso/trackslicer/internal/config"
	"github.com/maauso/trackslicer/internal/cut"
	"github.com/maauso/trackslicer/internal/session"
	"github.com/maauso/trackslicer/internal/storage"
)

// Dependencies holds all initialized dependencies of the server and the CLI.
type Dependencies struct {
	CutService *batch.CutSessionService
	Sessions   *session.Manager
}

// NewDependencies creates and initializes all dependencies for the application.
// Extra service options, such as a progress listener, are applied last.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...batch.ServiceOption) (*Dependencies, error) {
	// Initialize publishing
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionsDir)
	launcher := cut.NewFFmpegLauncher(cfg.FFmpegPath, cfg.Codec, cfg.Bitrate)
	repo := batch.NewMemoryRepository()

	svcOpts := make([]batch.ServiceOption, 0, len(opts)+1)
	if store != nil {
		svcOpts = append(svcOpts, batch.WithStorage(store))
	}
	svcOpts = append(svcOpts, opts...)

	svc := batch.NewCutSessionService(
		repo,
		sessions,
		launcher,
		logger,
		cfg.BatchOptions(),
		svcOpts...,
	)

	return &Dependencies{
		CutService: svc,
		Sessions:   sessions,
	}, nil
}

// initStorage creates the publishing backend based on configuration.
// S3 wins over a local library; with neither, tracks stay in the session.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, cfg.S3Config())
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	if cfg.LibraryEnabled() {
		localStore, err := storage.NewLocalStorage(cfg.LibraryDir)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		logger.Info("library publishing configured",
			slog.String("library_dir", localStore.Root()),
		)
		return localStore, nil
	}

	logger.Info("publishing disabled, tracks stay in their session")
	return nil, nil
}
