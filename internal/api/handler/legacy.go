package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/donovanhide/eventsource"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/internal/results"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// legacyRetryMillis is the reconnect delay advertised to SSE clients while a job is pending.
const legacyRetryMillis = "2000"

// Fetcher answers one poll of a two-phase request.
type Fetcher interface {
	FetchOwned(ctx context.Context, owner string, eventID uuid.UUID) (results.FetchResult, error)
}

type legacySubmitBody struct {
	Data []json.RawMessage `json:"data"`
}

type legacySubmitResponse struct {
	EventID string `json:"event_id"`
}

type legacyFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// NewLegacySubmitHandler returns an http.HandlerFunc for POST /call/process_inputs.
func NewLegacySubmitHandler(gate Admitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}

		var body legacySubmitBody
		if err := decodeJSON(w, r, &body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		inputs, err := models.DecodeLegacyInputs(body.Data)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if inputs.PDFFiles > 0 || inputs.ImageFiles > 0 {
			slog.Info("ignoring legacy file inputs",
				"owner", cred.Name, "pdf_files", inputs.PDFFiles, "image_files", inputs.ImageFiles)
		}

		adm, err := gate.Admit(r.Context(), cred, inputs.Request())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Raw(w, http.StatusOK, legacySubmitResponse{EventID: adm.Job.ID.String()})
	}
}

// NewLegacyResultHandler returns an http.HandlerFunc for GET /call/process_inputs/{eventID}.
// It reports the current state as one event and closes the stream; pending clients reconnect.
func NewLegacyResultHandler(fetcher Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := credentialOrAbort(w, r)
		if !ok {
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Event not found", nil)
			return
		}

		res, err := fetcher.FetchOwned(r.Context(), cred.Name, id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeLegacyEvent(w, id.String(), res); err != nil {
			slog.Warn("legacy event write failed", "job_id", id, "error", err)
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

type sseEvent struct {
	id, name, data string
}

func (e sseEvent) Id() string    { return e.id }
func (e sseEvent) Event() string { return e.name }
func (e sseEvent) Data() string  { return e.data }

func writeLegacyEvent(w io.Writer, id string, res results.FetchResult) error {
	ev := sseEvent{id: id, name: res.State.String()}
	switch res.State {
	case results.FetchPending:
		ev.name = "heartbeat"
		ev.data = "null"
		if _, err := io.WriteString(w, "retry: "+legacyRetryMillis+"\n"); err != nil {
			return err
		}
	case results.FetchComplete:
		data, err := json.Marshal([]legacyFile{{Path: res.ArtifactName, URL: res.AudioURL}})
		if err != nil {
			return err
		}
		ev.data = string(data)
	default:
		data, err := json.Marshal(res.Message)
		if err != nil {
			return err
		}
		ev.data = string(data)
	}
	return eventsource.NewEncoder(w, false).Encode(ev)
}
