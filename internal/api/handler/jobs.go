package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/internal/results"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// JobReader is the read side used by the job endpoints.
type JobReader interface {
	GetJob(ctx context.Context, owner string, id uuid.UUID) (results.View, error)
	List(ctx context.Context, owner string, filter store.JobFilter) ([]results.View, int, error)
}

// NewGetJobHandler returns an http.HandlerFunc for GET /jobs/{jobID}.
func NewGetJobHandler(reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}

		view, err := reader.GetJob(r.Context(), cred.Name, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		response.JSON(w, view)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /jobs.
func NewListJobsHandler(reader JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := store.JobFilter{
			Page:  atoiOr(q.Get("page"), 1),
			Limit: atoiOr(q.Get("limit"), 0),
		}
		if s := q.Get("status"); s != "" {
			status := models.JobStatus(s)
			if !status.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown status "+strconv.Quote(s), nil)
				return
			}
			filter.Status = status
		}
		filter = filter.Normalize()

		views, total, err := reader.List(r.Context(), cred.Name, filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, views, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
