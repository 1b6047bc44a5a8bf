package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

type ArtifactOpener interface {
	OpenArtifact(ctx context.Context, name string) (io.ReadCloser, models.Artifact, error)
}

// NewAudioHandler returns an http.HandlerFunc for GET /audio/{filename}.
func NewAudioHandler(opener ArtifactOpener) http.HandlerFunc {
	return artifactHandler(opener, artifact.AudioExt)
}

// NewTranscriptHandler returns an http.HandlerFunc for GET /transcripts/{filename}.
func NewTranscriptHandler(opener ArtifactOpener) http.HandlerFunc {
	return artifactHandler(opener, artifact.TranscriptExt)
}

func artifactHandler(opener ArtifactOpener, ext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if !artifact.ValidName(name) || name[len(name)-len(ext):] != ext {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "File not found", nil)
			return
		}

		rc, meta, err := opener.OpenArtifact(r.Context(), name)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "File not found", nil)
				return
			}
			writeError(w, r, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", meta.ContentType)
		if meta.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		}
		if !meta.CreatedAt.IsZero() {
			w.Header().Set("Last-Modified", meta.CreatedAt.UTC().Format(http.TimeFormat))
		}
		w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, rc); err != nil {
			slog.Warn("artifact stream interrupted", "artifact", name, "error", err)
		}
	}
}
