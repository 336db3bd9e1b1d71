package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrJobNotLeasable is returned when a lease attempt loses the race,
// arrives before the job's backoff has elapsed, or targets a job that no
// longer exists
var ErrJobNotLeasable = errors.New("job not leasable")

const jobColumns = `
	job_id, asset_id, owner_id, source_url,
	attempt, max_attempts, state, next_eligible_at,
	lease_expires_at, worker_id, error_message,
	created_at, updated_at
`

// Store handles all database operations on transcode jobs
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new job Store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert persists a freshly enqueued job (WAITING, attempt 1)
func (s *Store) Insert(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO transcode_jobs (
			job_id, asset_id, owner_id, source_url,
			attempt, max_attempts, state, next_eligible_at,
			created_at, updated_at
		) VALUES (
			:job_id, :asset_id, :owner_id, :source_url,
			:attempt, :max_attempts, :state, :next_eligible_at,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Lease claims a job for one worker using a compare-and-swap on state.
// The WAITING + eligibility condition guarantees no two workers ever hold
// the same job id and that backoff delays are honored.
func (s *Store) Lease(ctx context.Context, jobID, workerID string, ttl time.Duration) (*Job, error) {
	query := `
		UPDATE transcode_jobs
		SET state = $1,
		    worker_id = $2,
		    lease_expires_at = NOW() + $3 * INTERVAL '1 second',
		    updated_at = NOW()
		WHERE job_id = $4
		  AND state = $5
		  AND next_eligible_at <= NOW()
		RETURNING ` + jobColumns

	var job Job
	err := s.db.GetContext(ctx, &job, query, StateLeased, workerID, int(ttl.Seconds()), jobID, StateWaiting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotLeasable
		}
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	return &job, nil
}

// Complete removes a finished job from the queue. The worker_id condition
// keeps a worker whose lease was reaped from deleting someone else's claim.
func (s *Store) Complete(ctx context.Context, jobID, workerID string) error {
	query := `
		DELETE FROM transcode_jobs
		WHERE job_id = $1 AND worker_id = $2 AND state = $3
	`

	if _, err := s.db.ExecContext(ctx, query, jobID, workerID, StateLeased); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// MarkWaiting puts a failed job back into WAITING for its next attempt
func (s *Store) MarkWaiting(ctx context.Context, jobID, workerID string, nextAttempt int, nextEligibleAt time.Time, errorMsg string) error {
	query := `
		UPDATE transcode_jobs
		SET state = $1,
		    attempt = $2,
		    next_eligible_at = $3,
		    error_message = $4,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $5 AND worker_id = $6 AND state = $7
	`

	if _, err := s.db.ExecContext(ctx, query, StateWaiting, nextAttempt, nextEligibleAt, errorMsg, jobID, workerID, StateLeased); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	return nil
}

// MarkDead dead-letters a job whose attempts are exhausted. The row is
// retained for inspection and never redelivered.
func (s *Store) MarkDead(ctx context.Context, jobID, workerID string, errorMsg string) error {
	query := `
		UPDATE transcode_jobs
		SET state = $1,
		    error_message = $2,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $3 AND worker_id = $4 AND state = $5
	`

	if _, err := s.db.ExecContext(ctx, query, StateDead, errorMsg, jobID, workerID, StateLeased); err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}

	return nil
}

// ExpiredLeases returns LEASED jobs whose lease has lapsed. Lease expiry is
// an implicit retry trigger handled by the reaper.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM transcode_jobs
		WHERE state = $1 AND lease_expires_at < $2
		ORDER BY lease_expires_at ASC
		LIMIT $3
	`

	var found []Job
	if err := s.db.SelectContext(ctx, &found, query, StateLeased, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired leases: %w", err)
	}

	return found, nil
}

// OverdueWaiting returns WAITING jobs eligible since before the cutoff.
// Their wake-up message was lost (for example a worker died before its
// delayed republish fired), so the reaper republishes them.
func (s *Store) OverdueWaiting(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM transcode_jobs
		WHERE state = $1 AND next_eligible_at < $2
		ORDER BY next_eligible_at ASC
		LIMIT $3
	`

	var found []Job
	if err := s.db.SelectContext(ctx, &found, query, StateWaiting, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list overdue jobs: %w", err)
	}

	return found, nil
}
