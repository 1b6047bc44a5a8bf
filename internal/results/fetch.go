package results

import (
	"context"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// FetchState is the coarse two-phase outcome of a job.
type FetchState int

const (
	FetchPending FetchState = iota
	FetchComplete
	FetchError
)

func (s FetchState) String() string {
	switch s {
	case FetchPending:
		return "pending"
	case FetchComplete:
		return "complete"
	default:
		return "error"
	}
}

// FetchResult answers one poll of the two-phase protocol.
type FetchResult struct {
	State  FetchState
	Status models.JobStatus
	// ArtifactName and AudioURL are set for FetchComplete.
	ArtifactName string
	AudioURL     string
	Message      string
}

// Fetch reports the current outcome of eventID without waiting.
func (s *Server) Fetch(ctx context.Context, eventID uuid.UUID) (FetchResult, error) {
	return s.FetchOwned(ctx, "", eventID)
}

// FetchOwned is Fetch restricted to jobs of owner. An empty owner matches any job.
func (s *Server) FetchOwned(ctx context.Context, owner string, eventID uuid.UUID) (FetchResult, error) {
	job, err := s.owned(ctx, owner, eventID)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Status: job.Status}
	switch job.Status {
	case models.JobStatusSubmitted, models.JobStatusQueued, models.JobStatusRunning:
		res.State = FetchPending
	case models.JobStatusSucceeded:
		res.State = FetchComplete
		if job.ArtifactName != nil {
			res.ArtifactName = *job.ArtifactName
			res.AudioURL = s.links.AudioURL(*job.ArtifactName)
		}
	case models.JobStatusExpired:
		res.State = FetchError
		res.Message = "the podcast has expired; please submit a new request"
	default:
		res.State = FetchError
		res.Message = "podcast generation failed"
		if job.Failure != nil {
			res.Message = job.Failure.Message
		}
	}
	return res, nil
}
