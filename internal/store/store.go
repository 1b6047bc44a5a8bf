package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

var (
	ErrNotFound          = models.ErrNotFound
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrStaleTransition   = errors.New("stale job status transition")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the job persistence interface. Implementations must be safe for concurrent use
// and must return copies that callers may mutate freely.
type Store interface {
	Ping(ctx context.Context) error

	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateStatus moves a job from one status to another only if it is still in from.
	// Leaving a terminal status fails with ErrStaleTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error)
	// UpdateProgress records how far a RUNNING job has got. Progress never moves backwards.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	List(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	CountByStatus(ctx context.Context, owner string) (map[models.JobStatus]int, error)
	GetByArtifact(ctx context.Context, name string) (*models.Job, error)

	ListQueuedBefore(ctx context.Context, before time.Time) ([]*models.Job, error)
	ListRunningBefore(ctx context.Context, before time.Time) ([]*models.Job, error)
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]*models.Job, error)
	// Expire retires a SUCCEEDED or FAILED job and detaches its artifacts.
	Expire(ctx context.Context, id uuid.UUID, from models.JobStatus) (*models.Job, error)
}

type JobFilter struct {
	Owner  string
	Status models.JobStatus
	Page   int
	Limit  int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Normalize applies pagination defaults and bounds.
func (f JobFilter) Normalize() JobFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}

func (f JobFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

type jobUpdateParams struct {
	Failure        *models.Failure
	ArtifactName   *string
	TranscriptName *string
	Attempts       *int
}

type JobUpdateOption func(*jobUpdateParams)

func WithFailure(f models.Failure) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Failure = &f
	}
}

func WithArtifact(name string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ArtifactName = &name
	}
}

func WithTranscript(name string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.TranscriptName = &name
	}
}

func WithAttempts(n int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Attempts = &n
	}
}

func applyOptions(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}
