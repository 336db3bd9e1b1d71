package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/media-be/internal/jobs"
	"github.com/cuongbtq/media-be/internal/media"
)

// StalledQueue recovers jobs whose worker died or whose wake-up message
// was lost
type StalledQueue interface {
	ReapStalled(ctx context.Context, grace time.Duration) ([]jobs.Job, error)
}

// AssetFinalizer reads and finalizes assets whose jobs were dead-lettered
// by a sweep
type AssetFinalizer interface {
	GetByID(ctx context.Context, assetID string) (*media.Asset, error)
	MarkFailed(ctx context.Context, assetID, errorMsg string) error
}

// Reaper periodically sweeps the job queue for expired leases and overdue
// WAITING jobs. Jobs dead-lettered by the sweep get their assets moved to
// FAILED here, since no pipeline attempt is around to do it.
type Reaper struct {
	logger   *slog.Logger
	queue    StalledQueue
	assets   AssetFinalizer
	interval time.Duration
	grace    time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReaper creates a Reaper. The grace period keeps the sweep from
// racing freshly published messages still in flight.
func NewReaper(logger *slog.Logger, queue StalledQueue, assets AssetFinalizer, interval, grace time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}

	return &Reaper{
		logger:   logger,
		queue:    queue,
		assets:   assets,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop in the background
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()

	r.logger.Info("Reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("grace", r.grace),
	)
}

// Stop halts the sweep loop
func (r *Reaper) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Reaper) sweep(ctx context.Context) {
	dead, err := r.queue.ReapStalled(ctx, r.grace)
	if err != nil {
		r.logger.Error("Reaper sweep failed", slog.Any("error", err))
		return
	}

	for _, job := range dead {
		asset, err := r.assets.GetByID(ctx, job.AssetID)
		if err != nil {
			if !errors.Is(err, media.ErrAssetNotFound) {
				r.logger.Error("Failed to load asset after reap",
					slog.String("asset_id", job.AssetID),
					slog.String("job_id", job.JobID),
					slog.Any("error", err),
				)
			}
			continue
		}

		// A job can outlive a finished asset when the pipeline succeeded but
		// the queue delete failed. Terminal assets stay as they are.
		if asset.IsTerminal() {
			continue
		}

		if err := r.assets.MarkFailed(ctx, job.AssetID, media.ErrRetriesExhausted.Error()); err != nil {
			r.logger.Error("Failed to mark asset failed after reap",
				slog.String("asset_id", job.AssetID),
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
	}
}
