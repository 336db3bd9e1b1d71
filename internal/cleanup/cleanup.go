package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
)

// AssetSource lists and removes failed assets
type AssetSource interface {
	ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]media.Asset, error)
	Delete(ctx context.Context, assetID string) error
}

// ObjectDeleter removes stored artifacts
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Config holds janitor settings
type Config struct {
	Interval      time.Duration
	Retention     time.Duration
	BatchSize     int
	PublicBaseURL string
}

// Janitor periodically removes assets that failed permanently and have
// been sitting past the retention window, together with any artifacts a
// partial pipeline run left in the object store.
type Janitor struct {
	logger  *slog.Logger
	assets  AssetSource
	objects ObjectDeleter
	config  Config

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewJanitor creates the janitor
func NewJanitor(logger *slog.Logger, assets AssetSource, objects ObjectDeleter, config Config) *Janitor {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &Janitor{
		logger:   logger,
		assets:   assets,
		objects:  objects,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop in the background
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()

	j.logger.Info("Cleanup janitor started",
		slog.Duration("interval", j.config.Interval),
		slog.Duration("retention", j.config.Retention),
	)
}

// Stop halts the sweep loop
func (j *Janitor) Stop() {
	close(j.stopChan)
	j.wg.Wait()
}

// Sweep removes one batch of expired failed assets. Object deletions are
// best-effort; the asset row goes last so a crashed sweep retries fully.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.config.Retention)

	assets, err := j.assets.ListFailedBefore(ctx, cutoff, j.config.BatchSize)
	if err != nil {
		j.logger.Error("Cleanup sweep failed to list assets", slog.Any("error", err))
		return
	}

	for _, asset := range assets {
		for _, url := range []string{asset.PrimaryURL.String, asset.ThumbnailURL.String} {
			if url == "" {
				continue
			}

			key := storage.KeyFromURL(j.config.PublicBaseURL, url)
			if err := j.objects.Delete(ctx, key); err != nil {
				j.logger.Warn("Failed to delete orphaned object",
					slog.String("asset_id", asset.ID),
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		}

		if err := j.assets.Delete(ctx, asset.ID); err != nil {
			j.logger.Error("Failed to delete failed asset",
				slog.String("asset_id", asset.ID),
				slog.Any("error", err),
			)
			continue
		}

		j.logger.Info("Removed failed asset",
			slog.String("asset_id", asset.ID),
			slog.String("owner_id", asset.OwnerID),
		)
	}
}
