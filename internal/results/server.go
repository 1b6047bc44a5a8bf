// Package results serves job snapshots, two-phase fetches and stored artifacts.
package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/ratelimit"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

var ErrNotFound = models.ErrNotFound

// View is the client-facing snapshot of a job. Provider keys and the raw request are
// never included.
type View struct {
	JobID         uuid.UUID        `json:"jobId"`
	Status        models.JobStatus `json:"status"`
	Name          string           `json:"name,omitempty"`
	AudioURL      string           `json:"audioUrl,omitempty"`
	TranscriptURL string           `json:"transcriptUrl,omitempty"`
	Error         *models.Failure  `json:"error,omitempty"`
	Progress      int              `json:"progress"`
	Step          string           `json:"step,omitempty"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	ExpiredAt     *time.Time       `json:"expiredAt,omitempty"`
}

// Server answers read-side queries. It never blocks on generation.
type Server struct {
	store     store.Store
	artifacts artifact.Store
	limiter   ratelimit.Limiter
	links     Links
	now       func() time.Time
}

type Option func(*Server)

// WithBaseURL makes artifact URLs absolute.
func WithBaseURL(base string) Option {
	return func(s *Server) { s.links = Links{BaseURL: base} }
}

// WithLimiter enables usage figures in Stats.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(st store.Store, artifacts artifact.Store, opts ...Option) *Server {
	s := &Server{store: st, artifacts: artifacts, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Links returns the URL builder used for artifact references.
func (s *Server) Links() Links { return s.links }

// ViewOf converts a stored job into its client-facing form.
func (s *Server) ViewOf(job *models.Job) View {
	v := View{
		JobID:       job.ID,
		Status:      job.Status,
		Name:        job.Request.Name,
		Error:       job.Failure,
		Progress:    job.Progress,
		Step:        job.Step,
		Attempts:    job.Attempts,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		ExpiredAt:   job.ExpiredAt,
	}
	if job.Status == models.JobStatusSucceeded {
		if job.ArtifactName != nil {
			v.AudioURL = s.links.AudioURL(*job.ArtifactName)
		}
		if job.TranscriptName != nil {
			v.TranscriptURL = s.links.TranscriptURL(*job.TranscriptName)
		}
	}
	return v
}

// GetJob returns the job snapshot if owner may see it. Jobs of other owners are
// reported as not found.
func (s *Server) GetJob(ctx context.Context, owner string, id uuid.UUID) (View, error) {
	job, err := s.owned(ctx, owner, id)
	if err != nil {
		return View{}, err
	}
	return s.ViewOf(job), nil
}

// List returns a page of owner's jobs, newest first, and the total match count.
func (s *Server) List(ctx context.Context, owner string, filter store.JobFilter) ([]View, int, error) {
	filter.Owner = owner
	jobs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	views := make([]View, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, s.ViewOf(j))
	}
	return views, total, nil
}

// OpenArtifact streams name only while its owning job is SUCCEEDED. Bytes left behind by
// failed or expired jobs are not served.
func (s *Server) OpenArtifact(ctx context.Context, name string) (io.ReadCloser, models.Artifact, error) {
	if !artifact.ValidName(name) {
		return nil, models.Artifact{}, ErrNotFound
	}
	job, err := s.store.GetByArtifact(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.Artifact{}, ErrNotFound
		}
		return nil, models.Artifact{}, fmt.Errorf("lookup artifact: %w", err)
	}
	if job.Status != models.JobStatusSucceeded {
		return nil, models.Artifact{}, ErrNotFound
	}
	return s.artifacts.Open(ctx, name)
}

// Stats summarizes a credential's quota usage and job history.
type Stats struct {
	Owner          string                   `json:"apiKey"`
	Tier           string                   `json:"tier"`
	RateLimit      int                      `json:"rateLimit"`
	DailyQuota     int                      `json:"dailyQuota"`
	DailyUsage     int                      `json:"dailyUsage"`
	DailyRemaining int                      `json:"dailyRemaining"`
	DailyResetAt   *time.Time               `json:"dailyResetAt,omitempty"`
	TotalJobs      int                      `json:"totalJobs"`
	CompletedJobs  int                      `json:"completedJobs"`
	FailedJobs     int                      `json:"failedJobs"`
	SuccessRate    float64                  `json:"successRate"`
	Jobs           map[models.JobStatus]int `json:"jobs"`
}

func (s *Server) Stats(ctx context.Context, cred *models.Credential) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx, cred.Name)
	if err != nil {
		return Stats{}, fmt.Errorf("count jobs: %w", err)
	}

	st := Stats{
		Owner:          cred.Name,
		Tier:           cred.Tier,
		RateLimit:      cred.RateLimitPerMinute,
		DailyQuota:     cred.DailyQuota,
		DailyRemaining: cred.DailyQuota,
		Jobs:           counts,
	}
	for _, n := range counts {
		st.TotalJobs += n
	}
	st.CompletedJobs = counts[models.JobStatusSucceeded]
	st.FailedJobs = counts[models.JobStatusFailed]
	if st.TotalJobs > 0 {
		st.SuccessRate = math.Round(float64(st.CompletedJobs)/float64(st.TotalJobs)*10000) / 100
	}

	if s.limiter != nil {
		usage, err := s.limiter.Usage(ctx, cred, s.now())
		if err != nil {
			return Stats{}, fmt.Errorf("read usage: %w", err)
		}
		st.DailyUsage = usage.DailyCount
		st.DailyRemaining = usage.DailyRemaining()
		if !usage.DailyResetAt.IsZero() {
			reset := usage.DailyResetAt
			st.DailyResetAt = &reset
		}
	}
	return st, nil
}

func (s *Server) owned(ctx context.Context, owner string, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if owner != "" && job.Owner != owner {
		return nil, ErrNotFound
	}
	return job, nil
}
