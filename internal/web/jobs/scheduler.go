package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler enqueues recurring jobs on cron schedules. Work is not run in the
// scheduler itself; the worker pool picks it up from the queue.
type Scheduler struct {
	cron   *cron.Cron
	queue  *Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler. Schedules are evaluated in UTC.
func NewScheduler(queue *Queue, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Add enqueues a jobType job onto queueName each time spec fires. An empty
// spec disables the schedule.
func (s *Scheduler) Add(spec, queueName, jobType string, payload map[string]interface{}) error {
	if spec == "" {
		s.logger.Info("schedule disabled", zap.String("job_type", jobType))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.fire(context.Background(), queueName, jobType, payload)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", jobType, spec, err)
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, queueName, jobType string, payload map[string]interface{}) {
	p := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		p[k] = v
	}
	p["scheduled_at"] = s.now().UTC().Format(time.RFC3339)

	job := NewJob(queueName, jobType, p)
	job.MaxAttempts = 1
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("failed to enqueue scheduled job", zap.String("job_type", jobType), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled job enqueued", zap.String("job_type", jobType), zap.String("job_id", job.ID.String()))
}

// Len returns the number of active schedules
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins firing schedules in the background
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.Int("schedules", s.Len()))
	s.cron.Start()
}

// Stop halts the scheduler and waits for any firing enqueue to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
