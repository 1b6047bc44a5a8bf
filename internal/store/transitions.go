package store

import (
	"fmt"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// validTransitions is the job state machine. EXPIRED is reached only through Expire.
var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusSubmitted: {models.JobStatusQueued, models.JobStatusFailed},
	models.JobStatusQueued:    {models.JobStatusRunning, models.JobStatusFailed},
	models.JobStatusRunning:   {models.JobStatusSucceeded, models.JobStatusFailed},
}

// ValidTransition reports whether UpdateStatus may move a job from one status to another.
func ValidTransition(from, to models.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// expirable reports whether Expire may retire a job in status s.
func expirable(s models.JobStatus) bool {
	return s == models.JobStatusSucceeded || s == models.JobStatusFailed
}

// checkTransition rejects an UpdateStatus before it touches storage. Leaving a terminal
// status is always stale: the caller's view of the job is out of date.
func checkTransition(from, to models.JobStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: job is already %s", ErrStaleTransition, from)
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func clampProgress(p int) int {
	return min(max(p, 0), models.ProgressDone)
}
