package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, owner, request, status, attempts, failure, artifact_name, transcript_name,
	progress, current_step, started_at, completed_at, expired_at, created_at, updated_at`

// scrubKeys drops provider override keys from the stored request.
const scrubKeys = `request - 'openai_key' - 'google_key' - 'elevenlabs_key'`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j       models.Job
		request []byte
		failure []byte
	)
	if err := row.Scan(&j.ID, &j.Owner, &request, &j.Status, &j.Attempts, &failure,
		&j.ArtifactName, &j.TranscriptName, &j.Progress, &j.Step, &j.StartedAt, &j.CompletedAt, &j.ExpiredAt,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &j.Request); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	if len(failure) > 0 {
		var f models.Failure
		if err := json.Unmarshal(failure, &f); err != nil {
			return nil, fmt.Errorf("decode job failure: %w", err)
		}
		j.Failure = &f
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	var failure any
	if job.Failure != nil {
		b, err := json.Marshal(job.Failure)
		if err != nil {
			return fmt.Errorf("encode job failure: %w", err)
		}
		failure = b
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO podcast_jobs (id, owner, request, status, attempts, failure, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Owner, request, job.Status, job.Attempts, failure, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM podcast_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}
	params := applyOptions(opts)

	now := time.Now().UTC()
	query := `UPDATE podcast_jobs SET status = $3, updated_at = $4`
	args := []any{id, from, to, now}
	argIdx := 5

	switch to {
	case models.JobStatusRunning:
		query += fmt.Sprintf(", started_at = $%d, progress = $%d, current_step = $%d", argIdx, argIdx+1, argIdx+2)
		args = append(args, now, models.ProgressStarted, models.StepStarted)
		argIdx += 3
	case models.JobStatusSucceeded:
		query += fmt.Sprintf(", progress = $%d, current_step = $%d", argIdx, argIdx+1)
		args = append(args, models.ProgressDone, models.StepCompleted)
		argIdx += 2
	}
	if to.IsTerminal() {
		query += fmt.Sprintf(", completed_at = $%d, request = %s", argIdx, scrubKeys)
		args = append(args, now)
		argIdx++
	}
	if params.Failure != nil {
		b, err := json.Marshal(params.Failure)
		if err != nil {
			return nil, fmt.Errorf("encode job failure: %w", err)
		}
		query += fmt.Sprintf(", failure = $%d", argIdx)
		args = append(args, b)
		argIdx++
	}
	if params.ArtifactName != nil {
		query += fmt.Sprintf(", artifact_name = $%d", argIdx)
		args = append(args, *params.ArtifactName)
		argIdx++
	}
	if params.TranscriptName != nil {
		query += fmt.Sprintf(", transcript_name = $%d", argIdx)
		args = append(args, *params.TranscriptName)
		argIdx++
	}
	if params.Attempts != nil {
		query += fmt.Sprintf(", attempts = $%d", argIdx)
		args = append(args, *params.Attempts)
	}
	query += ` WHERE id = $1 AND status = $2 RETURNING ` + jobColumns

	j, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missedTransition(ctx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE podcast_jobs SET progress = GREATEST(progress, $3), current_step = $4, updated_at = $5
		 WHERE id = $1 AND status = $2`,
		id, models.JobStatusRunning, clampProgress(progress), step, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedTransition(ctx, id, models.JobStatusRunning)
	}
	return nil
}

// missedTransition explains why a compare-and-set update touched no rows.
func (s *PostgresStore) missedTransition(ctx context.Context, id uuid.UUID, expected models.JobStatus) error {
	var current models.JobStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM podcast_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: job is %s, expected %s", ErrStaleTransition, current, expected)
}

func (s *PostgresStore) List(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter = filter.Normalize()

	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", argIdx))
		args = append(args, filter.Owner)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM podcast_jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM podcast_jobs WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		jobColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.offset())

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return jobs, total, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, owner string) (map[models.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM podcast_jobs WHERE ($1 = '' OR owner = $1) GROUP BY status`, owner)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var (
			status models.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) GetByArtifact(ctx context.Context, name string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM podcast_jobs WHERE artifact_name = $1 OR transcript_name = $1 LIMIT 1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by artifact: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListQueuedBefore(ctx context.Context, before time.Time) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM podcast_jobs WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		models.JobStatusQueued, before)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) ListRunningBefore(ctx context.Context, before time.Time) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM podcast_jobs WHERE status = $1 AND started_at < $2 ORDER BY started_at`,
		models.JobStatusRunning, before)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = maxPageLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM podcast_jobs
		 WHERE status IN ($1, $2) AND completed_at < $3 ORDER BY completed_at LIMIT $4`,
		models.JobStatusSucceeded, models.JobStatusFailed, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list terminal jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PostgresStore) Expire(ctx context.Context, id uuid.UUID, from models.JobStatus) (*models.Job, error) {
	if !expirable(from) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, models.JobStatusExpired)
	}
	now := time.Now().UTC()
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE podcast_jobs
		 SET status = $3, expired_at = $4, updated_at = $4, artifact_name = NULL, transcript_name = NULL
		 WHERE id = $1 AND status = $2 RETURNING `+jobColumns,
		id, from, models.JobStatusExpired, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missedTransition(ctx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("expire job: %w", err)
	}
	return j, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
