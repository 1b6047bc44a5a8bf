package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a podcast generation job.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusExpired   JobStatus = "EXPIRED"
)

// IsTerminal reports whether no further UpdateStatus transition may leave s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusSubmitted, JobStatusQueued, JobStatusRunning,
		JobStatusSucceeded, JobStatusFailed, JobStatusExpired:
		return true
	default:
		return false
	}
}

// Failure codes recorded on FAILED jobs.
const (
	FailureQueueSaturated  = "QUEUE_SATURATED"
	FailureUpstreamTimeout = "UPSTREAM_TIMEOUT"
	FailureUpstreamError   = "UPSTREAM_ERROR"
	FailureInternal        = "INTERNAL_ERROR"
	FailureWorkerLost      = "WORKER_LOST"
)

// Failure is the structured cause attached to a FAILED job.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	// RetryAfterSecs is a hint for transient, system-level failures.
	RetryAfterSecs int `json:"retry_after_secs,omitempty"`
}

// Progress checkpoints recorded while a job runs.
const (
	ProgressStarted = 10
	ProgressScript  = 20
	ProgressSpeech  = 50
	ProgressStoring = 80
	ProgressDone    = 100
)

const (
	StepStarted   = "starting"
	StepScript    = "generating_script"
	StepSpeech    = "synthesizing_audio"
	StepStoring   = "storing_artifacts"
	StepCompleted = "completed"
)

// Job tracks one podcast generation request. POST /generate returns the job ID;
// the client polls GET /jobs/{jobId} until status is SUCCEEDED or FAILED.
type Job struct {
	ID             uuid.UUID         `db:"id"              json:"id"`
	Owner          string            `db:"owner"           json:"owner"`
	Request        GenerationRequest `db:"request"         json:"request"`
	Status         JobStatus         `db:"status"          json:"status"`
	Attempts       int               `db:"attempts"        json:"attempts"`
	Failure        *Failure          `db:"failure"         json:"failure,omitempty"`
	ArtifactName   *string           `db:"artifact_name"   json:"artifact_name,omitempty"`
	TranscriptName *string           `db:"transcript_name" json:"transcript_name,omitempty"`
	Progress       int               `db:"progress"        json:"progress"`
	Step           string            `db:"current_step"    json:"current_step,omitempty"`
	StartedAt      *time.Time        `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time        `db:"completed_at"    json:"completed_at,omitempty"`
	ExpiredAt      *time.Time        `db:"expired_at"      json:"expired_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"      json:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Request = j.Request.Clone()
	if j.Failure != nil {
		f := *j.Failure
		c.Failure = &f
	}
	c.ArtifactName = cloneString(j.ArtifactName)
	c.TranscriptName = cloneString(j.TranscriptName)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.ExpiredAt = cloneTime(j.ExpiredAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
