package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/podcastgate/pkg/client"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventID = "6f1c1c1e-8d54-4c3e-9d1e-2a8f0c1b7a42"

// legacyServer answers pending for the first heartbeats polls, then finalEvent.
func legacyServer(t *testing.T, heartbeats int32, finalEvent string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/call/process_inputs":
			var body struct {
				Data []json.RawMessage `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body.Data, models.LegacyFieldCount)
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"event_id":"`+eventID+`"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/call/process_inputs/"+eventID:
			assert.Equal(t, "Bearer "+apiKey, r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "text/event-stream")
			if gets.Add(1) <= heartbeats {
				io.WriteString(w, "retry: 10\nevent: heartbeat\ndata: null\n\n")
				return
			}
			io.WriteString(w, finalEvent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func TestLegacy_GenerateAndWait(t *testing.T) {
	srv, gets := legacyServer(t, 1,
		"event: complete\ndata: [{\"path\":\"podcast_0123456789abcdef0123456789abcdef.mp3\",\"url\":\"/audio/podcast_0123456789abcdef0123456789abcdef.mp3\"}]\n\n")

	in := models.DefaultLegacyInputs()
	in.Text = "A podcast about tea"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	file, err := client.NewLegacy(srv.URL, apiKey).GenerateAndWait(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "podcast_0123456789abcdef0123456789abcdef.mp3", file.Path)
	assert.Equal(t, "/audio/podcast_0123456789abcdef0123456789abcdef.mp3", file.URL)
	assert.GreaterOrEqual(t, gets.Load(), int32(2))
}

func TestLegacy_ErrorEvent(t *testing.T) {
	srv, _ := legacyServer(t, 0, "event: error\ndata: \"the podcast has expired; please submit a new request\"\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.NewLegacy(srv.URL, apiKey).Result(ctx, eventID)
	require.ErrorIs(t, err, client.ErrLegacyFailed)
	assert.Contains(t, err.Error(), "expired")
}

func TestLegacy_SubscribeRejected(t *testing.T) {
	srv, _ := legacyServer(t, 0, "")

	_, err := client.NewLegacy(srv.URL, apiKey).Result(context.Background(), "unknown")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestLegacy_SubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":"INVALID_REQUEST","message":"text: one of urls, text or topic is required"}}`)
	}))
	defer srv.Close()

	_, err := client.NewLegacy(srv.URL, apiKey).Submit(context.Background(), models.DefaultLegacyInputs())
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestLegacy_PollsEachHeartbeat(t *testing.T) {
	srv, gets := legacyServer(t, 3, "event: complete\ndata: [{\"path\":\"a.mp3\",\"url\":\"/audio/a.mp3\"}]\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// the server's retry of 10ms wins over the hour-long client interval
	files, err := client.NewLegacy(srv.URL, apiKey, client.WithPollInterval(time.Hour)).Result(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.mp3", files[0].Path)
	assert.Equal(t, int32(4), gets.Load())
}

func TestLegacy_HeartbeatWithoutRetryUsesPollInterval(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if gets.Add(1) == 1 {
			io.WriteString(w, "event: heartbeat\ndata: null\n\n")
			return
		}
		io.WriteString(w, "event: complete\ndata: []\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	files, err := client.NewLegacy(srv.URL, apiKey, client.WithPollInterval(5*time.Millisecond)).Result(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, int32(2), gets.Load())
}

func TestLegacy_ContextCancelledWhilePending(t *testing.T) {
	srv, _ := legacyServer(t, 1<<30, "")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.NewLegacy(srv.URL, apiKey).Result(ctx, eventID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLegacy_EmptyResponsesGiveUp(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.NewLegacy(srv.URL, apiKey, client.WithPollInterval(time.Millisecond)).Result(ctx, eventID)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int32(3), gets.Load())
}
