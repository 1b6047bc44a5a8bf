package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/admission"
	"github.com/kiranshivaraju/podcastgate/internal/api/handler"
	mw "github.com/kiranshivaraju/podcastgate/internal/api/middleware"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/credentials"
	"github.com/kiranshivaraju/podcastgate/internal/generation"
	"github.com/kiranshivaraju/podcastgate/internal/generation/mock"
	"github.com/kiranshivaraju/podcastgate/internal/queue"
	"github.com/kiranshivaraju/podcastgate/internal/ratelimit"
	"github.com/kiranshivaraju/podcastgate/internal/results"
	"github.com/kiranshivaraju/podcastgate/internal/store"
	"github.com/kiranshivaraju/podcastgate/internal/worker"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	demoKey  = "pk_demo123"
	otherKey = "pk_prod456"
)

type fixture struct {
	router    http.Handler
	store     *store.MemoryStore
	queue     *queue.Queue
	artifacts *artifact.FileStore
	results   *results.Server
	now       time.Time
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	kr, err := credentials.NewKeyring([]config.KeyConfig{
		{Key: demoKey, Name: "demo", Tier: models.TierDemo, RateLimitPerMinute: 10, DailyQuota: 100},
		{Key: otherKey, Name: "production", Tier: models.TierProduction, RateLimitPerMinute: 100, DailyQuota: 10000},
	}, credentials.WithCost(bcrypt.MinCost))
	require.NoError(t, err)

	files, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:     store.NewMemoryStore(),
		queue:     queue.New(capacity),
		artifacts: files,
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	limiter := ratelimit.NewMemoryLimiter()
	gate := admission.NewGate(kr, limiter, f.store, f.queue,
		admission.WithClock(func() time.Time { return f.now }),
		admission.WithTTSModels(func(m string) bool { return m != models.TTSGemini }))
	f.results = results.NewServer(f.store, files, results.WithLimiter(limiter),
		results.WithClock(func() time.Time { return f.now }))

	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler())
	r.Get("/ready", handler.NewReadyHandler(map[string]handler.Pinger{
		"store": f.store, "limiter": limiter, "artifacts": files,
	}))
	r.Get("/audio/{filename}", handler.NewAudioHandler(f.results))
	r.Get("/transcripts/{filename}", handler.NewTranscriptHandler(f.results))
	r.Group(func(r chi.Router) {
		r.Use(mw.NewAuth(kr).Authenticate)
		r.Post("/generate", handler.NewGenerateHandler(gate))
		r.Get("/jobs", handler.NewListJobsHandler(f.results))
		r.Get("/jobs/{jobID}", handler.NewGetJobHandler(f.results))
		r.Get("/stats", handler.NewStatsHandler(f.results))
		r.Post("/call/process_inputs", handler.NewLegacySubmitHandler(gate))
		r.Get("/call/process_inputs/{eventID}", handler.NewLegacyResultHandler(f.results))
	})
	f.router = r
	return f
}

func (f *fixture) startWorkers(t *testing.T) {
	t.Helper()
	pool := worker.New(worker.Config{Workers: 2}, f.store, f.queue,
		generation.NewStaticProviders(mock.NewScriptGenerator(), mock.NewSynthesizer()), f.artifacts)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

type submitted struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

func (f *fixture) submit(t *testing.T, key string, req models.GenerationRequest) submitted {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/generate", key, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var s submitted
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &s))
	return s
}

func TestGenerate_Accepted(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/generate", demoKey, models.GenerationRequest{Text: "Go concurrency"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var s submitted
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &s))
	assert.Equal(t, models.JobStatusQueued, s.Status)
	assert.Equal(t, "/jobs/"+s.JobID, rec.Header().Get("Location"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, f.queue.Len())
}

func TestGenerate_EmptyInputRejected(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/generate", demoKey, models.GenerationRequest{Text: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, rec).Error.Code)

	_, total, err := f.store.List(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGenerate_UnavailableTTSModelRejected(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/generate", demoKey, models.GenerationRequest{Text: "x", TTSModel: models.TTSGemini})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
	assert.Contains(t, env.Error.Message, "tts_model")
	assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))

	_, total, err := f.store.List(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGenerate_BadBodies(t *testing.T) {
	f := newFixture(t, 10)
	for name, body := range map[string]string{
		"empty":     "",
		"malformed": "{not json",
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/generate", demoKey, body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decode(t, rec).Error.Code)
		})
	}
}

func TestGenerate_Unauthenticated(t *testing.T) {
	f := newFixture(t, 10)

	for _, key := range []string{"", "pk_wrong_key"} {
		rec := f.do(t, http.MethodPost, "/generate", key, models.GenerationRequest{Text: "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, key)
	}
	assert.Zero(t, f.queue.Len())
}

func TestGenerate_EleventhRequestLimited(t *testing.T) {
	f := newFixture(t, 20)

	for i := 0; i < 10; i++ {
		f.submit(t, demoKey, models.GenerationRequest{Text: "topic"})
	}

	rec := f.do(t, http.MethodPost, "/generate", demoKey, models.GenerationRequest{Text: "topic"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	env := decode(t, rec)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.Contains(t, string(env.Error.Details), models.ReasonPerMinuteExceeded)

	// other credentials are unaffected
	f.submit(t, otherKey, models.GenerationRequest{Text: "topic"})
}

func TestGenerate_QueueSaturated(t *testing.T) {
	f := newFixture(t, 1)

	f.submit(t, demoKey, models.GenerationRequest{Text: "first"})
	rec := f.do(t, http.MethodPost, "/generate", demoKey, models.GenerationRequest{Text: "second"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "QUEUE_SATURATED", decode(t, rec).Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	counts, err := f.store.CountByStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusQueued])
	assert.Equal(t, 1, counts[models.JobStatusFailed])
}

func TestGetJob_OwnerScoped(t *testing.T) {
	f := newFixture(t, 10)
	s := f.submit(t, demoKey, models.GenerationRequest{Text: "mine", OpenAIKey: "sk-secret"})

	rec := f.do(t, http.MethodGet, "/jobs/"+s.JobID, demoKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotContains(t, rec.Body.String(), "sk-secret")

	var view results.View
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, models.JobStatusQueued, view.Status)
	assert.Empty(t, view.AudioURL)

	rec = f.do(t, http.MethodGet, "/jobs/"+s.JobID, otherKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs/not-a-uuid", demoKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_PollIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	s := f.submit(t, demoKey, models.GenerationRequest{Text: "poll"})

	first := f.do(t, http.MethodGet, "/jobs/"+s.JobID, demoKey, nil).Body.String()
	second := f.do(t, http.MethodGet, "/jobs/"+s.JobID, demoKey, nil).Body.String()
	assert.Equal(t, first, second)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, 10)
	for i := 0; i < 3; i++ {
		f.submit(t, demoKey, models.GenerationRequest{Text: "list"})
	}
	f.submit(t, otherKey, models.GenerationRequest{Text: "other"})

	rec := f.do(t, http.MethodGet, "/jobs?limit=2", demoKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []results.View `json:"data"`
		Meta pageMeta       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 3, body.Meta.Total)
	assert.True(t, body.Meta.HasNext)

	rec = f.do(t, http.MethodGet, "/jobs?status=SUCCEEDED", demoKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data)

	rec = f.do(t, http.MethodGet, "/jobs?status=bogus", demoKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pageMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"hasNext"`
}

func TestTextScenario_Succeeds(t *testing.T) {
	f := newFixture(t, 10)
	f.startWorkers(t)

	s := f.submit(t, demoKey, models.GenerationRequest{Text: "The history of the Go gopher"})

	var view results.View
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/jobs/"+s.JobID, demoKey, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		view = results.View{}
		if err := json.Unmarshal(decode(t, rec).Data, &view); err != nil {
			return false
		}
		return view.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, models.JobStatusSucceeded, view.Status)
	assert.True(t, strings.HasPrefix(view.AudioURL, "/audio/podcast_"), view.AudioURL)
	assert.True(t, strings.HasSuffix(view.AudioURL, ".mp3"), view.AudioURL)
	assert.Equal(t, 1, view.Attempts)
	assert.Equal(t, 100, view.Progress)
	assert.Equal(t, models.StepCompleted, view.Step)

	rec := f.do(t, http.MethodGet, view.AudioURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ContentTypeMPEG, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	rec = f.do(t, http.MethodGet, view.TranscriptURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func TestArtifacts_NotFound(t *testing.T) {
	f := newFixture(t, 10)

	audio, transcript := artifact.NewNames()
	// bytes on disk without a SUCCEEDED job stay hidden
	_, err := f.artifacts.Put(context.Background(), audio, []byte("ID3"))
	require.NoError(t, err)

	for _, path := range []string{
		"/audio/" + audio,
		"/audio/" + transcript,
		"/transcripts/" + audio,
		"/audio/..%2F..%2Fetc%2Fpasswd",
		"/audio/unknown.mp3",
	} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, 10)
	f.submit(t, demoKey, models.GenerationRequest{Text: "one"})
	f.submit(t, demoKey, models.GenerationRequest{Text: "two"})

	rec := f.do(t, http.MethodGet, "/stats", demoKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st results.Stats
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &st))
	assert.Equal(t, "demo", st.Owner)
	assert.Equal(t, 2, st.TotalJobs)
	assert.Equal(t, 100, st.DailyQuota)
	assert.Equal(t, 2, st.DailyUsage)
	assert.Equal(t, 98, st.DailyRemaining)
	assert.NotContains(t, rec.Body.String(), demoKey)
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"artifacts":"ok"`)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_Degraded(t *testing.T) {
	h := handler.NewReadyHandler(map[string]handler.Pinger{
		"store":   store.NewMemoryStore(),
		"limiter": downPinger{},
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "DEGRADED", env.Error.Code)
	assert.JSONEq(t, `{"limiter":"degraded","store":"ok"}`, string(env.Error.Details))
}

func legacySubmit(t *testing.T, f *fixture, data string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/call/process_inputs", demoKey, `{"data":`+data+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.EventID)
	return body.EventID
}

func TestLegacy_ImmediateFetchPending(t *testing.T) {
	f := newFixture(t, 10)
	id := legacySubmit(t, f, `["A short history of podcasts", "", [], [], "", "", "", 800]`)

	rec := f.do(t, http.MethodGet, "/call/process_inputs/"+id, demoKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: heartbeat\n")
	assert.Contains(t, rec.Body.String(), "retry: 2000\n")
	assert.True(t, strings.HasSuffix(rec.Body.String(), "\n\n"))

	job, err := f.store.Get(context.Background(), mustUUID(t, id))
	require.NoError(t, err)
	assert.Equal(t, 800, job.Request.WordCount)
}

func TestLegacy_Complete(t *testing.T) {
	f := newFixture(t, 10)
	f.startWorkers(t)
	id := legacySubmit(t, f, `["Text to turn into a podcast"]`)

	var body string
	require.Eventually(t, func() bool {
		body = f.do(t, http.MethodGet, "/call/process_inputs/"+id, demoKey, nil).Body.String()
		return !strings.Contains(body, "event: heartbeat")
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"path":"podcast_`)
	assert.Contains(t, body, `.mp3"`)
	assert.Contains(t, body, `"url":"/audio/podcast_`)
}

func TestLegacy_Errors(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/call/process_inputs", demoKey, `{"data":["", ""]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/call/process_inputs", demoKey, `{"data":[42]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := legacySubmit(t, f, `["mine"]`)
	rec = f.do(t, http.MethodGet, "/call/process_inputs/"+id, otherKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/call/process_inputs/nope", demoKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLegacy_FailedJobReportsError(t *testing.T) {
	f := newFixture(t, 10)
	id := legacySubmit(t, f, `["will fail"]`)
	uid := mustUUID(t, id)

	ctx := context.Background()
	_, err := f.store.UpdateStatus(ctx, uid, models.JobStatusQueued, models.JobStatusRunning)
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, uid, models.JobStatusRunning, models.JobStatusFailed,
		store.WithFailure(models.Failure{Code: models.FailureUpstreamError, Message: "upstream failed"}))
	require.NoError(t, err)

	body := f.do(t, http.MethodGet, "/call/process_inputs/"+id, demoKey, nil).Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `data: "upstream failed"`)
}
