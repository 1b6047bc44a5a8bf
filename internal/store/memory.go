package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// MemoryStore keeps jobs in process. It is used when no DATABASE_URL is configured and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
	now  func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		jobs: make(map[uuid.UUID]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateKey
	}
	c := job.Clone()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.jobs[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}
	params := applyOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != from {
		return nil, fmt.Errorf("%w: job is %s, expected %s", ErrStaleTransition, j.Status, from)
	}

	now := s.now()
	j.Status = to
	j.UpdatedAt = now
	switch to {
	case models.JobStatusRunning:
		j.StartedAt = &now
		j.Progress, j.Step = models.ProgressStarted, models.StepStarted
	case models.JobStatusSucceeded:
		j.Progress, j.Step = models.ProgressDone, models.StepCompleted
	}
	if to.IsTerminal() {
		j.CompletedAt = &now
		j.Request = j.Request.WithoutKeys()
	}
	if params.Failure != nil {
		f := *params.Failure
		j.Failure = &f
	}
	if params.ArtifactName != nil {
		name := *params.ArtifactName
		j.ArtifactName = &name
	}
	if params.TranscriptName != nil {
		name := *params.TranscriptName
		j.TranscriptName = &name
	}
	if params.Attempts != nil {
		j.Attempts = *params.Attempts
	}
	return j.Clone(), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != models.JobStatusRunning {
		return fmt.Errorf("%w: job is %s, expected %s", ErrStaleTransition, j.Status, models.JobStatusRunning)
	}
	j.Progress = max(j.Progress, clampProgress(progress))
	j.Step = step
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	var matched []*models.Job
	for _, j := range s.jobs {
		if filter.Owner != "" && j.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		matched = append(matched, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID.String() < matched[b].ID.String()
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	start := filter.offset()
	if start >= total {
		return []*models.Job{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, owner string) (map[models.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, j := range s.jobs {
		if owner != "" && j.Owner != owner {
			continue
		}
		counts[j.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) GetByArtifact(_ context.Context, name string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.jobs {
		if (j.ArtifactName != nil && *j.ArtifactName == name) ||
			(j.TranscriptName != nil && *j.TranscriptName == name) {
			return j.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListRunningBefore(_ context.Context, before time.Time) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, j := range s.jobs {
		if j.Status == models.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(before) {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ListQueuedBefore(_ context.Context, before time.Time) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, j := range s.jobs {
		if j.Status == models.JobStatusQueued && j.UpdatedAt.Before(before) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, j := range s.jobs {
		if expirable(j.Status) && j.CompletedAt != nil && j.CompletedAt.Before(before) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.Before(*out[b].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Expire(_ context.Context, id uuid.UUID, from models.JobStatus) (*models.Job, error) {
	if !expirable(from) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, models.JobStatusExpired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != from {
		return nil, fmt.Errorf("%w: job is %s, expected %s", ErrStaleTransition, j.Status, from)
	}

	now := s.now()
	j.Status = models.JobStatusExpired
	j.ExpiredAt = &now
	j.UpdatedAt = now
	j.ArtifactName = nil
	j.TranscriptName = nil
	return j.Clone(), nil
}
