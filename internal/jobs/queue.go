package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher sends job wake-up messages to the broker
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// FailureOutcome is the queue's verdict on one failed attempt
type FailureOutcome struct {
	Dead        bool
	NextAttempt int
	Delay       time.Duration
}

// Outcome computes what happens after the given attempt fails
func (p Policy) Outcome(attempt int) FailureOutcome {
	if p.Exhausted(attempt) {
		return FailureOutcome{Dead: true}
	}

	return FailureOutcome{
		NextAttempt: attempt + 1,
		Delay:       p.Delay(attempt),
	}
}

// Queue is the durable transcode job queue. Retry state lives in Postgres;
// RabbitMQ only carries wake-up messages, so delivery is at-least-once and
// the CAS lease in the store provides single-delivery per job id.
type Queue struct {
	store     *Store
	publisher Publisher
	policy    Policy
	leaseTTL  time.Duration
	logger    *slog.Logger
}

// NewQueue creates a Queue on top of the job store and a broker publisher
func NewQueue(store *Store, publisher Publisher, policy Policy, leaseTTL time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		store:     store,
		publisher: publisher,
		policy:    policy,
		leaseTTL:  leaseTTL,
		logger:    logger,
	}
}

// Policy returns the queue's retry policy
func (q *Queue) Policy() Policy {
	return q.policy
}

// Enqueue creates a WAITING job for the payload and notifies the broker.
// A failed notification is only logged: the reaper republishes overdue
// WAITING jobs, so the row is never stranded.
func (q *Queue) Enqueue(ctx context.Context, payload Payload) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		JobID:          uuid.New().String(),
		AssetID:        payload.AssetID,
		OwnerID:        payload.OwnerID,
		SourceURL:      payload.SourceURL,
		Attempt:        1,
		MaxAttempts:    q.policy.MaxAttempts,
		State:          StateWaiting,
		NextEligibleAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := q.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := q.notify(ctx, job.JobID); err != nil {
		q.logger.Warn("Failed to publish job notification, reaper will recover it",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	q.logger.Info("Transcode job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("asset_id", job.AssetID),
	)

	return job, nil
}

// Lease claims the job exclusively for workerID
func (q *Queue) Lease(ctx context.Context, jobID, workerID string) (*Job, error) {
	return q.store.Lease(ctx, jobID, workerID, q.leaseTTL)
}

// Complete removes a successfully processed job from the queue
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	return q.store.Complete(ctx, job.JobID, job.WorkerID.String)
}

// Fail applies the retry policy to a failed attempt. If retries remain the
// job returns to WAITING with its backoff timestamp and a redelivery is
// scheduled; otherwise it is dead-lettered.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (FailureOutcome, error) {
	outcome := q.policy.Outcome(job.Attempt)
	msg := cause.Error()

	if outcome.Dead {
		if err := q.store.MarkDead(ctx, job.JobID, job.WorkerID.String, msg); err != nil {
			return outcome, err
		}

		q.logger.Warn("Job dead-lettered",
			slog.String("job_id", job.JobID),
			slog.String("asset_id", job.AssetID),
			slog.Int("attempt", job.Attempt),
			slog.String("error", msg),
		)
		return outcome, nil
	}

	nextEligibleAt := time.Now().UTC().Add(outcome.Delay)
	if err := q.store.MarkWaiting(ctx, job.JobID, job.WorkerID.String, outcome.NextAttempt, nextEligibleAt, msg); err != nil {
		return outcome, err
	}

	q.scheduleRedelivery(job.JobID, outcome.Delay)

	q.logger.Info("Job scheduled for retry",
		slog.String("job_id", job.JobID),
		slog.String("asset_id", job.AssetID),
		slog.Int("next_attempt", outcome.NextAttempt),
		slog.Duration("delay", outcome.Delay),
	)

	return outcome, nil
}

// ReapStalled recovers jobs stuck by worker crashes or lost messages.
// Expired leases are treated as implicit retries under the same policy;
// overdue WAITING jobs are republished. Returns the dead-lettered jobs so
// the caller can finalize their assets.
func (q *Queue) ReapStalled(ctx context.Context, grace time.Duration) (dead []Job, err error) {
	now := time.Now().UTC()

	expired, err := q.store.ExpiredLeases(ctx, now, 100)
	if err != nil {
		return nil, err
	}

	for _, job := range expired {
		outcome := q.policy.Outcome(job.Attempt)

		if outcome.Dead {
			if err := q.store.MarkDead(ctx, job.JobID, job.WorkerID.String, "lease expired"); err != nil {
				q.logger.Error("Failed to dead-letter expired lease",
					slog.String("job_id", job.JobID),
					slog.Any("error", err),
				)
				continue
			}
			dead = append(dead, job)
			continue
		}

		nextEligibleAt := now.Add(outcome.Delay)
		if err := q.store.MarkWaiting(ctx, job.JobID, job.WorkerID.String, outcome.NextAttempt, nextEligibleAt, "lease expired"); err != nil {
			q.logger.Error("Failed to requeue expired lease",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
			continue
		}

		q.logger.Warn("Expired lease requeued",
			slog.String("job_id", job.JobID),
			slog.Int("next_attempt", outcome.NextAttempt),
		)
		q.scheduleRedelivery(job.JobID, outcome.Delay)
	}

	overdue, err := q.store.OverdueWaiting(ctx, now.Add(-grace), 100)
	if err != nil {
		return dead, err
	}

	for _, job := range overdue {
		if err := q.notify(ctx, job.JobID); err != nil {
			q.logger.Error("Failed to republish overdue job",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
	}

	return dead, nil
}

// scheduleRedelivery publishes the wake-up message once the backoff elapses
func (q *Queue) scheduleRedelivery(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := q.notify(context.Background(), jobID); err != nil {
			q.logger.Error("Failed to publish delayed job notification",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	})
}

func (q *Queue) notify(ctx context.Context, jobID string) error {
	body, err := json.Marshal(Message{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	return q.publisher.PublishWithRetry(ctx, body, "application/json")
}
