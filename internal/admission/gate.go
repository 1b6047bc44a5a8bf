// Package admission accepts or rejects generation requests synchronously and hands
// accepted jobs to the queue.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/credentials"
	"github.com/kiranshivaraju/podcastgate/internal/queue"
	"github.com/kiranshivaraju/podcastgate/internal/ratelimit"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// ErrLimiterUnavailable is returned when the limiter backend fails and the gate is
// configured to fail closed.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// saturatedRetryAfter is suggested to clients when the queue is full.
const saturatedRetryAfter = 30 * time.Second

// Admission is a successful submission.
type Admission struct {
	Job      *models.Job
	Decision ratelimit.Decision
}

// Gate validates, authenticates and rate limits requests before creating jobs.
type Gate struct {
	resolver   credentials.Resolver
	limiter    ratelimit.Limiter
	store      store.Store
	queue      *queue.Queue
	precedence []models.InputChannel
	ttsModels  func(string) bool
	failOpen   bool
	now        func() time.Time
}

type Option func(*Gate)

// WithFailOpen controls whether a limiter backend error admits the request.
func WithFailOpen(failOpen bool) Option {
	return func(g *Gate) { g.failOpen = failOpen }
}

func WithPrecedence(p []models.InputChannel) Option {
	return func(g *Gate) { g.precedence = p }
}

// WithTTSModels rejects requests whose tts_model the server has no synthesizer for.
func WithTTSModels(supported func(ttsModel string) bool) Option {
	return func(g *Gate) { g.ttsModels = supported }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(resolver credentials.Resolver, limiter ratelimit.Limiter, st store.Store, q *queue.Queue, opts ...Option) *Gate {
	g := &Gate{
		resolver:   resolver,
		limiter:    limiter,
		store:      st,
		queue:      q,
		precedence: models.DefaultPrecedence,
		failOpen:   true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates req, resolves token and admits the request on behalf of its credential.
func (g *Gate) Submit(ctx context.Context, token string, req models.GenerationRequest) (*Admission, error) {
	if err := g.validate(req); err != nil {
		return nil, err
	}
	cred, err := g.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return g.Admit(ctx, cred, req)
}

func (g *Gate) validate(req models.GenerationRequest) error {
	if err := req.Validate(g.precedence); err != nil {
		return err
	}
	if g.ttsModels != nil && !g.ttsModels(req.TTSModel) {
		return models.InvalidRequestError("tts_model", fmt.Sprintf("model %q is not available on this server", req.TTSModel))
	}
	return nil
}

// Admit runs the rate limit check and creates the job for an already authenticated credential.
// A returned job is always either QUEUED with a queue entry or FAILED.
func (g *Gate) Admit(ctx context.Context, cred *models.Credential, req models.GenerationRequest) (*Admission, error) {
	if cred == nil {
		return nil, models.ErrUnauthenticated
	}
	if err := g.validate(req); err != nil {
		return nil, err
	}

	decision, err := g.limiter.Check(ctx, cred, g.now())
	if err != nil {
		if !g.failOpen {
			slog.Error("rate limiter unavailable, rejecting", "owner", cred.Name, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrLimiterUnavailable, err)
		}
		slog.Warn("rate limiter unavailable, allowing request", "owner", cred.Name, "error", err)
		decision = ratelimit.Decision{Allowed: true, Remaining: -1, Limit: cred.RateLimitPerMinute}
	}
	if !decision.Allowed {
		slog.Info("request rate limited",
			"owner", cred.Name,
			"key_prefix", cred.KeyPrefix,
			"reason", decision.Reason,
			"retry_after", decision.RetryAfter.String(),
		)
		return nil, decision.Err()
	}

	job := &models.Job{
		ID:      uuid.New(),
		Owner:   cred.Name,
		Request: req.WithDefaults(),
		Status:  models.JobStatusSubmitted,
	}
	if err := g.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	queued, err := g.store.UpdateStatus(ctx, job.ID, models.JobStatusSubmitted, models.JobStatusQueued)
	if err != nil {
		g.failJob(ctx, job.ID, models.JobStatusSubmitted, models.Failure{
			Code:    models.FailureInternal,
			Message: "internal error while queueing the job",
		})
		return nil, fmt.Errorf("queue job: %w", err)
	}

	if err := g.queue.Enqueue(job.ID); err != nil {
		failed := g.failJob(ctx, job.ID, models.JobStatusQueued, models.Failure{
			Code:           models.FailureQueueSaturated,
			Message:        "the server is at capacity; retry later",
			Retryable:      true,
			RetryAfterSecs: int(saturatedRetryAfter / time.Second),
		})
		slog.Warn("queue saturated, job rejected",
			"job_id", job.ID,
			"owner", cred.Name,
			"queue_depth", g.queue.Len(),
			"error", err,
		)
		return &Admission{Job: failed, Decision: decision}, &SaturatedError{RetryAfter: saturatedRetryAfter, cause: err}
	}

	slog.Info("job admitted", "job_id", job.ID, "owner", cred.Name, "remaining", decision.Remaining)
	return &Admission{Job: queued, Decision: decision}, nil
}

// failJob moves a job that could not be queued to FAILED so it is never orphaned.
func (g *Gate) failJob(ctx context.Context, id uuid.UUID, from models.JobStatus, f models.Failure) *models.Job {
	job, err := g.store.UpdateStatus(context.WithoutCancel(ctx), id, from, models.JobStatusFailed, store.WithFailure(f))
	if err != nil {
		slog.Error("failed to fail unqueued job", "job_id", id, "error", err)
		return nil
	}
	return job
}

// SaturatedError reports a full queue. errors.Is(err, models.ErrQueueSaturated) holds for it.
type SaturatedError struct {
	RetryAfter time.Duration
	cause      error
}

func (e *SaturatedError) Error() string {
	return fmt.Sprintf("%s: %v", models.ErrQueueSaturated, e.cause)
}

func (e *SaturatedError) Is(target error) bool { return target == models.ErrQueueSaturated }

func (e *SaturatedError) Unwrap() error { return e.cause }
