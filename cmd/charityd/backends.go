package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

// openBlobSet opens both backends and orders them by storage.prefer. A GridFS
// backend connects in the background and stays unavailable until it does.
func openBlobSet(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*blobstore.Set, error) {
	files, err := blobstore.NewFilesystem(cfg.Storage.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("open uploads dir: %w", err)
	}

	database, err := openDatabaseBackend(ctx, cfg, logger)
	if err != nil {
		_ = files.Close()
		return nil, err
	}

	if cfg.Storage.Prefer == config.StoragePreferFilesystem {
		return blobstore.NewSet(logger, files, database)
	}
	return blobstore.NewSet(logger, database, files)
}

func openDatabaseBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.Backend, error) {
	switch cfg.Storage.DatabaseDriver {
	case config.DatabaseDriverGridFS:
		g, err := blobstore.NewGridFSBlobs(blobstore.GridFSConfig{
			URI:       cfg.Storage.MongoURI,
			Database:  cfg.Storage.MongoDatabase,
			Bucket:    cfg.Storage.GridFSBucket,
			ChunkSize: cfg.Storage.ChunkSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configure gridfs backend: %w", err)
		}
		go func() {
			if err := g.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("gridfs backend never became available", "error", err)
			}
		}()
		return g, nil
	default:
		db, err := blobstore.OpenSQLiteBlobs(cfg.Storage.BlobDBPath, cfg.Storage.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("open blob database: %w", err)
		}
		return db, nil
	}
}
