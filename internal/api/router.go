package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/podcastgate/internal/api/middleware"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth *mw.Auth

	HealthHandler     http.HandlerFunc
	ReadyHandler      http.HandlerFunc
	AudioHandler      http.HandlerFunc
	TranscriptHandler http.HandlerFunc

	GenerateHandler http.HandlerFunc
	GetJobHandler   http.HandlerFunc
	ListJobsHandler http.HandlerFunc
	StatsHandler    http.HandlerFunc

	LegacySubmitHandler http.HandlerFunc
	LegacyResultHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	})

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/ready", orNotImplemented(deps.ReadyHandler))
	r.Get("/audio/{filename}", orNotImplemented(deps.AudioHandler))
	r.Head("/audio/{filename}", orNotImplemented(deps.AudioHandler))
	r.Get("/transcripts/{filename}", orNotImplemented(deps.TranscriptHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Post("/generate", orNotImplemented(deps.GenerateHandler))
		r.Get("/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/stats", orNotImplemented(deps.StatsHandler))

		r.Post("/call/process_inputs", orNotImplemented(deps.LegacySubmitHandler))
		r.Get("/call/process_inputs/{eventID}", orNotImplemented(deps.LegacyResultHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
