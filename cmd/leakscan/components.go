package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/blob"
	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/index"
	"github.com/hyperjump/leakscan/internal/metrics"
	"github.com/hyperjump/leakscan/internal/service"
	"github.com/hyperjump/leakscan/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Registry *storage.SQLiteRegistry
	Index    *index.BleveIndex
	Blobs    blob.Store
	Metrics  *metrics.Metrics
	Service  *service.Service
}

// Close releases the registry and the index.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.New()}

	reg, err := storage.NewSQLiteRegistry(ctx, cfg.Storage.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	c.Registry = reg

	idx, err := index.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize record index: %w", err)
	}
	c.Index = idx

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Blobs = blobs

	c.Service = service.New(reg, idx, blobs, cfg,
		service.WithLogger(logger),
		service.WithMetrics(c.Metrics))
	return c, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if m := cfg.Storage.MinIO; m.Enabled() {
		store, err := blob.NewMinIOStore(ctx, blob.MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio blob store: %w", err)
		}
		return store, nil
	}
	store, err := blob.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload dir: %w", err)
	}
	return store, nil
}
