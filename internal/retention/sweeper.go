// Package retention expires old jobs and recovers jobs abandoned by a crashed worker.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const batchSize = 500

// Notifier is told about jobs the sweeper fails.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job)
}

// Pending reports whether a job ID is still waiting in this process's queue.
type Pending interface {
	Contains(id uuid.UUID) bool
}

// Sweeper runs periodic maintenance over the job store.
type Sweeper struct {
	cfg       config.RetentionConfig
	store     store.Store
	artifacts artifact.Store
	notifier  Notifier
	pending   Pending
	now       func() time.Time
}

type Option func(*Sweeper)

func WithNotifier(n Notifier) Option {
	return func(s *Sweeper) { s.notifier = n }
}

// WithPending lets stale QUEUED recovery skip jobs that are still waiting for a worker.
func WithPending(p Pending) Option {
	return func(s *Sweeper) { s.pending = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(cfg config.RetentionConfig, st store.Store, artifacts artifact.Store, opts ...Option) *Sweeper {
	s := &Sweeper{cfg: cfg, store: st, artifacts: artifacts, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result counts what one sweep changed.
type Result struct {
	Expired          int
	RecoveredQueued  int
	RecoveredRunning int
	DeletedArtifacts int
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("retention sweeper started",
		"interval", s.cfg.SweepInterval.String(),
		"retention", s.cfg.JobRetention.String(),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Errors are logged; a failing step does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	var res Result
	now := s.now()

	if s.cfg.StaleQueuedAfter > 0 {
		res.RecoveredQueued = s.recoverQueued(ctx, now.Add(-s.cfg.StaleQueuedAfter))
	}
	if s.cfg.StaleRunningAfter > 0 {
		res.RecoveredRunning = s.recoverRunning(ctx, now.Add(-s.cfg.StaleRunningAfter))
	}
	res.Expired, res.DeletedArtifacts = s.expire(ctx, now.Add(-s.cfg.JobRetention))

	if res.Expired > 0 || res.RecoveredQueued > 0 || res.RecoveredRunning > 0 {
		slog.Info("retention sweep completed",
			"expired", res.Expired,
			"recovered_queued", res.RecoveredQueued,
			"recovered_running", res.RecoveredRunning,
			"deleted_artifacts", res.DeletedArtifacts,
		)
	}
	return res
}

// recoverQueued fails jobs that have sat in QUEUED since before cutoff without being in the
// queue, for example because a worker dequeued them and then lost its store connection.
func (s *Sweeper) recoverQueued(ctx context.Context, cutoff time.Time) int {
	jobs, err := s.store.ListQueuedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to list stale queued jobs", "error", err)
		return 0
	}

	n := 0
	for _, j := range jobs {
		if s.pending != nil && s.pending.Contains(j.ID) {
			continue
		}
		if s.fail(ctx, j, models.JobStatusQueued, "this job was lost before a worker started it; please resubmit") {
			slog.Warn("failed stale queued job", "job_id", j.ID, "owner", j.Owner, "queued_at", j.UpdatedAt)
			n++
		}
	}
	return n
}

// recoverRunning fails jobs that have been RUNNING since before cutoff. They are never requeued.
func (s *Sweeper) recoverRunning(ctx context.Context, cutoff time.Time) int {
	jobs, err := s.store.ListRunningBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to list stale running jobs", "error", err)
		return 0
	}

	n := 0
	for _, j := range jobs {
		if s.fail(ctx, j, models.JobStatusRunning, "the worker processing this job stopped responding; please resubmit") {
			slog.Warn("failed stale running job", "job_id", j.ID, "owner", j.Owner, "started_at", j.StartedAt)
			n++
		}
	}
	return n
}

func (s *Sweeper) fail(ctx context.Context, j *models.Job, from models.JobStatus, msg string) bool {
	failed, err := s.store.UpdateStatus(ctx, j.ID, from, models.JobStatusFailed,
		store.WithFailure(models.Failure{
			Code:      models.FailureWorkerLost,
			Message:   msg,
			Retryable: true,
		}))
	if err != nil {
		if !errors.Is(err, store.ErrStaleTransition) {
			slog.Error("failed to recover stale job", "job_id", j.ID, "status", from, "error", err)
		}
		return false
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, failed)
	}
	return true
}

func (s *Sweeper) expire(ctx context.Context, cutoff time.Time) (expired, deleted int) {
	for {
		jobs, err := s.store.ListTerminalBefore(ctx, cutoff, batchSize)
		if err != nil {
			slog.Error("failed to list expirable jobs", "error", err)
			return expired, deleted
		}

		progressed := 0
		for _, j := range jobs {
			if _, err := s.store.Expire(ctx, j.ID, j.Status); err != nil {
				if !errors.Is(err, store.ErrStaleTransition) {
					slog.Error("failed to expire job", "job_id", j.ID, "error", err)
				}
				continue
			}
			progressed++
			expired++
			if s.cfg.DeleteExpiredArtifacts {
				deleted += s.deleteArtifacts(ctx, j)
			}
		}
		if len(jobs) < batchSize || progressed == 0 || ctx.Err() != nil {
			return expired, deleted
		}
	}
}

func (s *Sweeper) deleteArtifacts(ctx context.Context, j *models.Job) int {
	n := 0
	for _, name := range []*string{j.ArtifactName, j.TranscriptName} {
		if name == nil {
			continue
		}
		if err := s.artifacts.Delete(ctx, *name); err != nil {
			slog.Warn("failed to delete expired artifact", "job_id", j.ID, "artifact", *name, "error", err)
			continue
		}
		n++
	}
	return n
}
