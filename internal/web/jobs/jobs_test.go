package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockQueue(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewQueue(conn), mock
}

var jobColumnNames = []string{
	"id", "queue", "type", "payload", "status", "priority", "attempts", "max_attempts",
	"error", "created_at", "run_at", "started_at", "completed_at", "locked_by", "locked_at",
}

func jobRow(id uuid.UUID, jobType string, payload string, attempts, maxAttempts int) *sqlmock.Rows {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id.String(), "default", jobType, []byte(payload), "running", int64(50),
		int64(attempts), int64(maxAttempts), nil, now, now, now, nil, "worker-1", now,
	)
}

func TestNewJob(t *testing.T) {
	job := NewJob("default", "referral.issue_reward", nil)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, PriorityNormal, job.Priority)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.NotNil(t, job.Payload)
	assert.True(t, job.IsRetryable())
}

func TestJob_FinalAttempt(t *testing.T) {
	job := &Job{Attempts: 2, MaxAttempts: 3}
	assert.False(t, job.FinalAttempt())
	job.Attempts = 3
	assert.True(t, job.FinalAttempt())
}

func TestJob_PayloadAccessors(t *testing.T) {
	id := uuid.New()
	job := NewJob("default", "t", map[string]interface{}{
		"referral_id": id.String(),
		"count":       float64(3),
		"bad_uuid":    "nope",
	})

	got, err := job.UUID("referral_id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = job.String("missing")
	assert.Error(t, err)
	_, err = job.String("count")
	assert.Error(t, err)
	_, err = job.UUID("bad_uuid")
	assert.Error(t, err)
}

func TestQueue_Enqueue(t *testing.T) {
	q, mock := newMockQueue(t)
	job := NewJob("default", "invoices.sweep_overdue", map[string]interface{}{"a": "b"})

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, "default", "invoices.sweep_overdue", []byte(`{"a":"b"}`), "pending", int64(50),
			int64(0), int64(DefaultMaxAttempts), job.CreatedAt, job.RunAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, q.Enqueue(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_Dequeue(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("running", "worker-1", sqlmock.AnyArg(), "pending", "default").
		WillReturnRows(jobRow(id, "t", `{"k":"v"}`, 1, 3))

	job, err := q.Dequeue(context.Background(), "worker-1", "default")
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, "v", job.Payload["k"])
	assert.Equal(t, 1, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, mock := newMockQueue(t)
	mock.ExpectQuery("UPDATE jobs").WillReturnRows(sqlmock.NewRows(jobColumnNames))

	_, err := q.Dequeue(context.Background(), "worker-1", "default")
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestQueue_Retry(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()
	next := time.Date(2025, 3, 1, 12, 2, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE jobs").
		WithArgs(id, "pending", sqlmock.AnyArg(), "boom").
		WillReturnRows(sqlmock.NewRows([]string{"run_at"}).AddRow(next))

	runAt, err := q.Retry(context.Background(), id, "boom")
	require.NoError(t, err)
	assert.Equal(t, next, runAt)
}

func TestQueue_RetryExhausted(t *testing.T) {
	q, mock := newMockQueue(t)
	mock.ExpectQuery("UPDATE jobs").WillReturnRows(sqlmock.NewRows([]string{"run_at"}))

	_, err := q.Retry(context.Background(), uuid.New(), "boom")
	assert.Error(t, err)
}

func TestQueue_PurgeCompleted(t *testing.T) {
	q, mock := newMockQueue(t)
	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := q.PurgeCompleted(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestWorkerPool_RunOnceCompletes(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()
	pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)

	var seen *Job
	pool.RegisterHandler("t", func(ctx context.Context, job *Job) error {
		seen = job
		return nil
	})

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(jobRow(id, "t", `{}`, 1, 3))
	mock.ExpectExec("UPDATE jobs SET status").
		WithArgs("completed", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.True(t, pool.RunOnce(context.Background(), "worker-1"))
	require.NotNil(t, seen)
	assert.Equal(t, id, seen.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_RunOnceRetries(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()
	pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)
	pool.RegisterHandler("t", func(ctx context.Context, job *Job) error {
		return errors.New("gateway down")
	})

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(jobRow(id, "t", `{}`, 1, 3))
	mock.ExpectQuery("UPDATE jobs").
		WithArgs(id, "pending", sqlmock.AnyArg(), "gateway down").
		WillReturnRows(sqlmock.NewRows([]string{"run_at"}).AddRow(time.Now()))

	assert.True(t, pool.RunOnce(context.Background(), "worker-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_FailsOnFinalAttempt(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()
	pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)
	pool.RegisterHandler("t", func(ctx context.Context, job *Job) error {
		return errors.New("still down")
	})

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(jobRow(id, "t", `{}`, 3, 3))
	mock.ExpectExec("UPDATE jobs SET status").
		WithArgs("failed", "still down", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pool.RunOnce(context.Background(), "worker-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_PermanentAndPanicSkipRetry(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		errMsg  string
	}{
		{
			name:    "permanent",
			handler: func(ctx context.Context, job *Job) error { return Permanent(errors.New("bad payload")) },
			errMsg:  "bad payload",
		},
		{
			name:    "panic",
			handler: func(ctx context.Context, job *Job) error { panic("nil map") },
			errMsg:  "handler panic: nil map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, mock := newMockQueue(t)
			id := uuid.New()
			pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)
			pool.RegisterHandler("t", tt.handler)

			mock.ExpectQuery("UPDATE jobs").WillReturnRows(jobRow(id, "t", `{}`, 1, 3))
			mock.ExpectExec("UPDATE jobs SET status").
				WithArgs("failed", tt.errMsg, sqlmock.AnyArg(), id).
				WillReturnResult(sqlmock.NewResult(0, 1))

			pool.RunOnce(context.Background(), "worker-1")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWorkerPool_UnknownType(t *testing.T) {
	q, mock := newMockQueue(t)
	id := uuid.New()
	pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(jobRow(id, "mystery", `{}`, 1, 3))
	mock.ExpectExec("UPDATE jobs SET status").
		WithArgs("failed", "no handler registered for job type: mystery", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pool.RunOnce(context.Background(), "worker-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_RunOnceEmpty(t *testing.T) {
	q, mock := newMockQueue(t)
	pool := NewWorkerPool(q, PoolConfig{Queue: "default"}, nil)
	mock.ExpectQuery("UPDATE jobs").WillReturnRows(sqlmock.NewRows(jobColumnNames))

	assert.False(t, pool.RunOnce(context.Background(), "worker-1"))
}

func TestScheduler_Add(t *testing.T) {
	q, _ := newMockQueue(t)
	s := NewScheduler(q, nil)

	require.NoError(t, s.Add("15 2 * * *", "default", "invoices.sweep_overdue", nil))
	require.NoError(t, s.Add("", "default", "disabled", nil))
	assert.Error(t, s.Add("not a spec", "default", "broken", nil))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_FireEnqueuesSingleAttempt(t *testing.T) {
	q, mock := newMockQueue(t)
	s := NewScheduler(q, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 2, 15, 0, 0, time.UTC) }

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(sqlmock.AnyArg(), "default", "jobs.purge",
			[]byte(`{"older_than":"336h","scheduled_at":"2025-03-01T02:15:00Z"}`),
			"pending", int64(50), int64(0), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.fire(context.Background(), "default", "jobs.purge", map[string]interface{}{"older_than": "336h"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_DispatchTx(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	d := NewDispatcher(NewQueue(conn), "default")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := conn.Begin()
	require.NoError(t, err)
	id, err := d.DispatchTx(context.Background(), tx, "referral.issue_reward", map[string]interface{}{"referral_id": "x"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
