package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/media-be/internal/jobs"
	"github.com/cuongbtq/media-be/internal/media"
)

// JobQueue is the slice of the durable queue the processor drives
type JobQueue interface {
	Lease(ctx context.Context, jobID, workerID string) (*jobs.Job, error)
	Complete(ctx context.Context, job *jobs.Job) error
	Fail(ctx context.Context, job *jobs.Job, cause error) (jobs.FailureOutcome, error)
}

// JobRunner executes the transcode pipeline for one leased job
type JobRunner interface {
	Run(ctx context.Context, job *jobs.Job) error
}

// Processor turns one wake-up message into at most one processed attempt.
// The lease in Postgres is the actual claim; a message that loses the
// lease race is acknowledged and dropped.
type Processor struct {
	logger   *slog.Logger
	queue    JobQueue
	assets   AssetWriter
	pipeline JobRunner
	workerID string
}

// NewProcessor creates a processor bound to a stable worker identity
func NewProcessor(logger *slog.Logger, queue JobQueue, assets AssetWriter, pipeline JobRunner, workerID string) *Processor {
	return &Processor{
		logger:   logger,
		queue:    queue,
		assets:   assets,
		pipeline: pipeline,
		workerID: workerID,
	}
}

// Handle processes one job message. The returned bool tells the consumer
// whether to acknowledge the delivery; false means the broker should
// redeliver because no durable verdict was recorded.
func (p *Processor) Handle(ctx context.Context, msg jobs.Message) bool {
	job, err := p.queue.Lease(ctx, msg.JobID, p.workerID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotLeasable) {
			// already claimed, completed or not yet eligible
			p.logger.Debug("Skipping non-leasable job",
				slog.String("job_id", msg.JobID),
				slog.Any("reason", err),
			)
			return true
		}

		p.logger.Error("Failed to lease job",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		return false
	}

	p.logger.Info("Job leased",
		slog.String("job_id", job.JobID),
		slog.String("asset_id", job.AssetID),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	runErr := p.pipeline.Run(ctx, job)
	if runErr == nil {
		if err := p.queue.Complete(ctx, job); err != nil {
			// the lease will expire and the reaper re-runs the job;
			// artifact keys are deterministic so the rerun overwrites
			p.logger.Error("Failed to complete job",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
		return true
	}

	p.logger.Warn("Job attempt failed",
		slog.String("job_id", job.JobID),
		slog.String("asset_id", job.AssetID),
		slog.Int("attempt", job.Attempt),
		slog.Bool("retryable", media.IsRetryable(runErr)),
		slog.Any("error", runErr),
	)

	// Every failed attempt finalizes the asset; a retry's MarkProcessing
	// flips it back. The asset never sits PROCESSING without a lease.
	if err := p.assets.MarkFailed(ctx, job.AssetID, runErr.Error()); err != nil {
		p.logger.Error("Failed to mark asset failed",
			slog.String("asset_id", job.AssetID),
			slog.Any("error", err),
		)
	}

	outcome, err := p.queue.Fail(ctx, job, runErr)
	if err != nil {
		p.logger.Error("Failed to record job failure",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return false
	}

	if outcome.Dead {
		p.logger.Warn("Asset failed permanently",
			slog.String("asset_id", job.AssetID),
			slog.String("job_id", job.JobID),
			slog.String("error", runErr.Error()),
		)
	}

	return true
}
