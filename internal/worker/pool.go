// Package worker executes queued generation jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/generation"
	"github.com/kiranshivaraju/podcastgate/internal/queue"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/panjf2000/ants/v2"
)

var ErrAlreadyStarted = errors.New("worker pool already started")

// Notifier is told about every terminal transition a worker makes.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job)
}

type Config struct {
	Workers      int
	TextTimeout  time.Duration
	TTSTimeout   time.Duration
	StoreTimeout time.Duration
	MaxAttempts  int
	Precedence   []models.InputChannel

	// Backoff bounds between retries of a transient failure.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// ConfigFrom maps server configuration onto pool settings.
func ConfigFrom(w config.WorkerConfig, precedence []models.InputChannel) Config {
	return Config{
		Workers:      w.Count,
		TextTimeout:  w.TextTimeout,
		TTSTimeout:   w.TTSTimeout,
		StoreTimeout: w.StoreTimeout,
		MaxAttempts:  w.MaxAttempts,
		Precedence:   precedence,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = 5 * time.Minute
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 10 * time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = time.Minute
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 10 * time.Second
	}
	return c
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Workers       int   `json:"workers"`
	Busy          int   `json:"busy"`
	QueueDepth    int   `json:"queueDepth"`
	QueueCapacity int   `json:"queueCapacity"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
}

// Pool runs a fixed number of executor loops that pull job IDs off the queue.
type Pool struct {
	cfg       Config
	store     store.Store
	queue     *queue.Queue
	providers *generation.Providers
	artifacts artifact.Store
	notifier  Notifier

	mu      sync.Mutex
	pool    *ants.Pool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	started bool

	busy      atomic.Int32
	succeeded atomic.Int64
	failed    atomic.Int64
}

type Option func(*Pool)

func WithNotifier(n Notifier) Option {
	return func(p *Pool) { p.notifier = n }
}

func New(cfg Config, st store.Store, q *queue.Queue, providers *generation.Providers, artifacts artifact.Store, opts ...Option) *Pool {
	p := &Pool{
		cfg:       cfg.withDefaults(),
		store:     st,
		queue:     q,
		providers: providers,
		artifacts: artifacts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the executor loops. They run until Shutdown; cancelling ctx does not stop them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	pool, err := ants.NewPool(p.cfg.Workers, ants.WithPanicHandler(func(v interface{}) {
		slog.Error("panic in worker loop", "panic", fmt.Sprint(v))
	}))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.cfg.Workers; i++ {
		p.loops.Add(1)
		worker := i
		if err := pool.Submit(func() {
			defer p.loops.Done()
			p.loop(runCtx, worker)
		}); err != nil {
			p.loops.Done()
			cancel()
			pool.Release()
			return fmt.Errorf("submit worker loop: %w", err)
		}
	}

	p.pool = pool
	p.cancel = cancel
	p.started = true
	slog.Info("worker pool started", "workers", p.cfg.Workers, "max_attempts", p.cfg.MaxAttempts)
	return nil
}

// Shutdown closes the queue and waits for queued and in-flight jobs to finish. If ctx
// expires first, in-flight work is cancelled and jobs still waiting in the queue are failed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	p.queue.Close()
	if !started {
		p.failRemaining()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}
	p.cancel()
	p.failRemaining()
	p.pool.Release()

	slog.Info("worker pool stopped", "succeeded", p.succeeded.Load(), "failed", p.failed.Load())
	return err
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.cfg.Workers,
		Busy:          int(p.busy.Load()),
		QueueDepth:    p.queue.Len(),
		QueueCapacity: p.queue.Cap(),
		Succeeded:     p.succeeded.Load(),
		Failed:        p.failed.Load(),
	}
}

func (p *Pool) loop(ctx context.Context, worker int) {
	for {
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Error("dequeue failed", "worker", worker, "error", err)
			}
			return
		}
		p.handle(ctx, worker, id)
	}
}

// handle processes one dequeued job. A panic is contained to that job.
func (p *Pool) handle(ctx context.Context, worker int, id uuid.UUID) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling job",
				"worker", worker,
				"job_id", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			p.abandon(ctx, id)
		}
	}()
	p.process(ctx, id)
}

// abandon fails a job that a panicking worker may have left QUEUED or RUNNING.
func (p *Pool) abandon(ctx context.Context, id uuid.UUID) {
	failure := models.Failure{
		Code:    models.FailureInternal,
		Message: "internal error while generating the podcast; this is not caused by your input",
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()

	for _, from := range []models.JobStatus{models.JobStatusRunning, models.JobStatusQueued} {
		job, err := p.store.UpdateStatus(storeCtx, id, from, models.JobStatusFailed, store.WithFailure(failure))
		if err == nil {
			p.failed.Add(1)
			p.notify(job)
			return
		}
	}
}

// failRemaining drains a closed queue, failing jobs that never reached a worker.
func (p *Pool) failRemaining() {
	ctx := context.Background()
	for {
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.failQueued(ctx, id, workerLostQueued)
	}
}

var workerLostQueued = models.Failure{
	Code:      models.FailureWorkerLost,
	Message:   "the server shut down before this job started; please resubmit",
	Retryable: true,
}

// failQueued moves a dequeued job that will never run from QUEUED to FAILED. It runs even
// when ctx is cancelled; a job it cannot fail is left for the retention sweeper.
func (p *Pool) failQueued(ctx context.Context, id uuid.UUID, failure models.Failure) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()

	job, err := p.store.UpdateStatus(storeCtx, id, models.JobStatusQueued, models.JobStatusFailed, store.WithFailure(failure))
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) || errors.Is(err, store.ErrNotFound) {
			return
		}
		slog.Error("failed to fail queued job", "job_id", id, "code", failure.Code, "error", err)
		return
	}
	p.failed.Add(1)
	p.notify(job)
}

func (p *Pool) process(ctx context.Context, id uuid.UUID) {
	if ctx.Err() != nil {
		p.failQueued(ctx, id, workerLostQueued)
		return
	}
	job, err := p.store.UpdateStatus(ctx, id, models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) || errors.Is(err, store.ErrNotFound) {
			slog.Warn("dropping job that is no longer queued", "job_id", id, "error", err)
			return
		}
		slog.Error("failed to claim job", "job_id", id, "error", err)
		failure := models.Failure{
			Code:           models.FailureInternal,
			Message:        "the server could not start this job; retry later",
			Retryable:      true,
			RetryAfterSecs: 30,
		}
		if ctx.Err() != nil {
			failure = workerLostQueued
		}
		p.failQueued(ctx, id, failure)
		return
	}
	slog.Info("job started", "job_id", id, "owner", job.Owner)

	started := time.Now()
	out, runErr := p.run(ctx, job)

	// Finalize even if the pool is being torn down.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()

	var final *models.Job
	if runErr == nil {
		final, err = p.store.UpdateStatus(finalCtx, id, models.JobStatusRunning, models.JobStatusSucceeded,
			store.WithArtifact(out.audio),
			store.WithTranscript(out.transcript),
			store.WithAttempts(out.attempts),
		)
	} else {
		failure := classify(runErr)
		if ctx.Err() != nil {
			failure = models.Failure{
				Code:      models.FailureWorkerLost,
				Message:   "the server shut down while this job was running; please resubmit",
				Retryable: true,
			}
		}
		final, err = p.store.UpdateStatus(finalCtx, id, models.JobStatusRunning, models.JobStatusFailed,
			store.WithFailure(failure),
			store.WithAttempts(out.attempts),
		)
	}
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			slog.Warn("job left RUNNING before completion", "job_id", id, "error", err)
		} else {
			slog.Error("failed to record job outcome", "job_id", id, "error", err)
		}
		return
	}

	if runErr == nil {
		p.succeeded.Add(1)
		slog.Info("job succeeded",
			"job_id", id,
			"artifact", out.audio,
			"attempts", out.attempts,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	} else {
		p.failed.Add(1)
		slog.Warn("job failed",
			"job_id", id,
			"code", final.Failure.Code,
			"attempts", out.attempts,
			"error", runErr,
		)
	}
	p.notify(final)
}

func (p *Pool) notify(job *models.Job) {
	if p.notifier == nil || job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job notifier", "job_id", job.ID, "panic", fmt.Sprint(r))
		}
	}()
	p.notifier.Notify(context.Background(), job)
}
