// Package jobs runs background work from a PostgreSQL-backed queue: a worker
// pool with registered handlers and retry backoff, plus cron schedules that
// enqueue recurring work.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	// StatusPending indicates the job is waiting to be processed
	StatusPending Status = "pending"
	// StatusRunning indicates a worker holds the job
	StatusRunning Status = "running"
	// StatusCompleted indicates the job finished successfully
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job failed after all retries
	StatusFailed Status = "failed"
)

// Priority determines execution order (higher runs sooner)
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 50
	PriorityHigh   Priority = 75
)

// DefaultMaxAttempts bounds retries for jobs that do not set their own
const DefaultMaxAttempts = 5

// Job is a unit of background work
type Job struct {
	ID          uuid.UUID              `json:"id"`
	Queue       string                 `json:"queue"`
	Type        string                 `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	Status      Status                 `json:"status"`
	Priority    Priority               `json:"priority"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	Error       *string                `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	RunAt       time.Time              `json:"run_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	LockedBy    *string                `json:"locked_by,omitempty"`
	LockedAt    *time.Time             `json:"locked_at,omitempty"`
}

// NewJob creates a pending job ready to run now
func NewJob(queue, jobType string, payload map[string]interface{}) *Job {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Queue:       queue,
		Type:        jobType,
		Payload:     payload,
		Status:      StatusPending,
		Priority:    PriorityNormal,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		RunAt:       now,
	}
}

// IsRetryable reports whether another attempt is allowed
func (j *Job) IsRetryable() bool {
	return j.Attempts < j.MaxAttempts
}

// FinalAttempt reports whether a failure now exhausts the job
func (j *Job) FinalAttempt() bool {
	return !j.IsRetryable()
}

// String returns the payload value for key
func (j *Job) String(key string) (string, error) {
	v, ok := j.Payload[key]
	if !ok {
		return "", fmt.Errorf("job %s: payload missing %q", j.Type, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("job %s: payload %q is %T, not string", j.Type, key, v)
	}
	return s, nil
}

// UUID returns the payload value for key parsed as a uuid
func (j *Job) UUID(key string) (uuid.UUID, error) {
	s, err := j.String(key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job %s: payload %q: %w", j.Type, key, err)
	}
	return id, nil
}
