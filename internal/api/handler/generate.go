package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/admission"
	mw "github.com/kiranshivaraju/podcastgate/internal/api/middleware"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const maxBodyBytes = 1 << 20

// Admitter is the admission dependency of the submit endpoints.
type Admitter interface {
	Admit(ctx context.Context, cred *models.Credential, req models.GenerationRequest) (*admission.Admission, error)
}

type generateResponse struct {
	JobID     string           `json:"jobId"`
	Status    models.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /generate.
func NewGenerateHandler(gate Admitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}

		var req models.GenerationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		adm, err := gate.Admit(r.Context(), cred, req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		mw.SetRateLimitHeaders(w, adm.Decision.Limit, adm.Decision.Remaining, adm.Decision.ResetAt)
		w.Header().Set("Location", "/jobs/"+adm.Job.ID.String())
		response.Accepted(w, generateResponse{
			JobID:     adm.Job.ID.String(),
			Status:    adm.Job.Status,
			CreatedAt: adm.Job.CreatedAt,
		})
	}
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}
