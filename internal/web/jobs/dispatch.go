package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

// Dispatcher enqueues jobs on a fixed queue. Domain services depend on it
// through small interfaces so they never see the queue tables.
type Dispatcher struct {
	queue     *Queue
	queueName string
}

// NewDispatcher creates a dispatcher for queueName
func NewDispatcher(queue *Queue, queueName string) *Dispatcher {
	return &Dispatcher{queue: queue, queueName: queueName}
}

// Dispatch enqueues a job to run as soon as a worker is free
func (d *Dispatcher) Dispatch(ctx context.Context, jobType string, payload map[string]interface{}) (uuid.UUID, error) {
	job := NewJob(d.queueName, jobType, payload)
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// DispatchTx enqueues a job inside tx; it is dropped if tx rolls back
func (d *Dispatcher) DispatchTx(ctx context.Context, tx db.DBTX, jobType string, payload map[string]interface{}) (uuid.UUID, error) {
	job := NewJob(d.queueName, jobType, payload)
	if err := d.queue.WithTx(tx).Enqueue(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// DispatchAt enqueues a job to run no earlier than runAt
func (d *Dispatcher) DispatchAt(ctx context.Context, jobType string, payload map[string]interface{}, runAt time.Time) (uuid.UUID, error) {
	job := NewJob(d.queueName, jobType, payload)
	if err := d.queue.Schedule(ctx, job, runAt); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}
