package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/metrics"
)

// Handler processes a single job. Returning an error schedules a retry while
// attempts remain; wrap it with Permanent to fail the job immediately.
type Handler func(ctx context.Context, job *Job) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// HandlerRegistry maps job types to handlers
type HandlerRegistry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register sets the handler for jobType, replacing any previous one
func (r *HandlerRegistry) Register(jobType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Get returns the handler for jobType
func (r *HandlerRegistry) Get(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type: %s", jobType)
	}
	return h, nil
}

// Types lists the registered job types
func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// PoolConfig configures a worker pool
type PoolConfig struct {
	Queue        string
	Workers      int
	PollInterval time.Duration
	// JobTimeout bounds a single handler run; zero means no limit
	JobTimeout time.Duration
}

// WorkerPool runs handlers for jobs dequeued from one queue
type WorkerPool struct {
	queue    *Queue
	handlers *HandlerRegistry
	cfg      PoolConfig
	logger   *zap.Logger

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWorkerPool creates a worker pool
func NewWorkerPool(queue *Queue, cfg PoolConfig, logger *zap.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		queue:    queue,
		handlers: NewHandlerRegistry(),
		cfg:      cfg,
		logger:   logger.With(zap.String("queue", cfg.Queue)),
	}
}

// RegisterHandler registers a job handler for a specific job type
func (p *WorkerPool) RegisterHandler(jobType string, handler Handler) {
	p.handlers.Register(jobType, handler)
}

// Start launches the workers. They run until Stop is called or ctx ends.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})

	p.logger.Info("starting worker pool",
		zap.Int("workers", p.cfg.Workers),
		zap.Strings("job_types", p.handlers.Types()))

	for i := 0; i < p.cfg.Workers; i++ {
		id := fmt.Sprintf("worker-%s-%d", p.cfg.Queue, i)
		p.wg.Add(1)
		go p.run(ctx, id)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.running = false
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !p.RunOnce(ctx, workerID) {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
		}
	}
}

// RunOnce dequeues and processes at most one job. It reports whether a job
// was found.
func (p *WorkerPool) RunOnce(ctx context.Context, workerID string) bool {
	job, err := p.queue.Dequeue(ctx, workerID, p.cfg.Queue)
	if errors.Is(err, ErrNoJobs) {
		return false
	}
	if err != nil {
		p.logger.Warn("dequeue failed", zap.String("worker", workerID), zap.Error(err))
		return false
	}
	p.process(ctx, workerID, job)
	return true
}

func (p *WorkerPool) process(ctx context.Context, workerID string, job *Job) {
	start := time.Now()
	log := p.logger.With(
		zap.String("worker", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts))

	handler, err := p.handlers.Get(job.Type)
	if err != nil {
		log.Error("unknown job type")
		p.fail(ctx, log, job, err)
		metrics.RecordJob(job.Type, "failed", time.Since(start))
		return
	}

	err = p.invoke(ctx, handler, job)
	duration := time.Since(start)

	if err == nil {
		if cerr := p.queue.Complete(ctx, job.ID); cerr != nil {
			log.Error("failed to mark job complete", zap.Error(cerr))
		}
		log.Debug("job completed", zap.Duration("duration", duration))
		metrics.RecordJob(job.Type, "completed", duration)
		return
	}

	if IsPermanent(err) || !job.IsRetryable() {
		log.Error("job failed", zap.Error(err), zap.Duration("duration", duration))
		p.fail(ctx, log, job, err)
		metrics.RecordJob(job.Type, "failed", duration)
		return
	}

	runAt, rerr := p.queue.Retry(ctx, job.ID, err.Error())
	if rerr != nil {
		log.Error("failed to schedule retry", zap.Error(rerr))
		p.fail(ctx, log, job, err)
		metrics.RecordJob(job.Type, "failed", duration)
		return
	}
	log.Warn("job failed, retrying", zap.Error(err), zap.Time("run_at", runAt))
	metrics.RecordJob(job.Type, "retried", duration)
}

func (p *WorkerPool) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (p *WorkerPool) fail(ctx context.Context, log *zap.Logger, job *Job, cause error) {
	if err := p.queue.Fail(ctx, job.ID, cause.Error()); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
	}
}
