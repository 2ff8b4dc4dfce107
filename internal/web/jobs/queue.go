package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

// ErrNoJobs is returned by Dequeue when nothing is ready to run
var ErrNoJobs = errors.New("no jobs available")

const jobColumns = `id, queue, type, payload, status, priority, attempts, max_attempts,
	error, created_at, run_at, started_at, completed_at, locked_by, locked_at`

// Queue provides PostgreSQL-backed job queue operations
type Queue struct {
	db db.DBTX
}

// NewQueue creates a queue over conn
func NewQueue(conn db.DBTX) *Queue {
	return &Queue{db: conn}
}

// WithTx returns a queue that enqueues inside tx, so the job only becomes
// visible if the surrounding work commits
func (q *Queue) WithTx(tx db.DBTX) *Queue {
	return &Queue{db: tx}
}

// Enqueue adds a job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, queue, type, payload, status, priority,
			attempts, max_attempts, created_at, run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = q.db.ExecContext(ctx, query,
		job.ID, job.Queue, job.Type, payloadJSON, job.Status, job.Priority,
		job.Attempts, job.MaxAttempts, job.CreatedAt, job.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Schedule adds a job to be executed at a specific time
func (q *Queue) Schedule(ctx context.Context, job *Job, runAt time.Time) error {
	job.RunAt = runAt.UTC()
	return q.Enqueue(ctx, job)
}

func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	var job Job
	var payloadJSON []byte
	err := row.Scan(
		&job.ID, &job.Queue, &job.Type, &payloadJSON, &job.Status, &job.Priority,
		&job.Attempts, &job.MaxAttempts, &job.Error, &job.CreatedAt, &job.RunAt,
		&job.StartedAt, &job.CompletedAt, &job.LockedBy, &job.LockedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &job, nil
}

// Dequeue locks the next runnable job for workerID
func (q *Queue) Dequeue(ctx context.Context, workerID, queueName string) (*Job, error) {
	// SKIP LOCKED lets concurrent workers claim different rows without blocking
	query := `
		UPDATE jobs
		SET status = $1, locked_by = $2, locked_at = $3, started_at = $3, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $4 AND queue = $5 AND run_at <= $3
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	now := time.Now().UTC()
	job, err := scanJob(q.db.QueryRowContext(ctx, query, StatusRunning, workerID, now, StatusPending, queueName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return job, nil
}

// Get loads a job by id
func (q *Queue) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	job, err := scanJob(q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return job, nil
}

// Complete marks a job as successfully completed
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3
	`
	if err := db.ExpectOne(q.db.ExecContext(ctx, query, StatusCompleted, time.Now().UTC(), jobID)); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail marks a job as permanently failed
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, error = $2, completed_at = $3, locked_by = NULL, locked_at = NULL
		WHERE id = $4
	`
	if err := db.ExpectOne(q.db.ExecContext(ctx, query, StatusFailed, errMsg, time.Now().UTC(), jobID)); err != nil {
		return fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}
	return nil
}

// Retry reschedules a failed attempt with exponential backoff (1, 2, 4 ...
// minutes, capped at 1024). It refuses once attempts reach max_attempts.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID, errMsg string) (time.Time, error) {
	query := `
		UPDATE jobs
		SET status = $2,
			run_at = $3 + (INTERVAL '1 minute' * (1 << LEAST(attempts - 1, 10))),
			error = $4,
			locked_by = NULL,
			locked_at = NULL
		WHERE id = $1 AND attempts < max_attempts
		RETURNING run_at
	`
	var runAt time.Time
	err := q.db.QueryRowContext(ctx, query, jobID, StatusPending, time.Now().UTC(), errMsg).Scan(&runAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("job %s not found or out of attempts", jobID)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to retry job: %w", err)
	}
	return runAt, nil
}

// ReleaseStale returns running jobs locked before cutoff to pending; their
// worker died without reporting
func (q *Queue) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, locked_by = NULL, locked_at = NULL
		WHERE status = $2 AND locked_at < $3
	`, StatusPending, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// PurgeCompleted removes completed jobs finished before now minus olderThan
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = $1 AND completed_at < $2`, StatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return res.RowsAffected()
}
