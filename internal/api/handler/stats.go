package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/internal/results"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

type StatsReader interface {
	Stats(ctx context.Context, cred *models.Credential) (results.Stats, error)
}

// NewStatsHandler returns an http.HandlerFunc for GET /stats.
func NewStatsHandler(reader StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}
		st, err := reader.Stats(r.Context(), cred)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, st)
	}
}
