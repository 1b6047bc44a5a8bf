// Package client is a Go client for the podcast generation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Client calls the JSON endpoints with a bearer API key.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPollInterval sets how often GenerateAndWait polls the job.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) { cl.pollInterval = d }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: defaultTimeout},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is set from the Retry-After header on 429 and 503 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is lets callers match API errors against the models sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case models.ErrInvalidRequest:
		return e.Code == "INVALID_REQUEST"
	case models.ErrUnauthenticated:
		return e.Code == "UNAUTHENTICATED"
	case models.ErrRateLimited:
		return e.Code == "RATE_LIMITED"
	case models.ErrQueueSaturated:
		return e.Code == "QUEUE_SATURATED"
	case models.ErrNotFound:
		return e.Code == "NOT_FOUND"
	}
	return false
}

// Submission is the acknowledgement of POST /generate.
type Submission struct {
	JobID     uuid.UUID        `json:"jobId"`
	Status    models.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Job mirrors the job view returned by GET /jobs/{id}.
type Job struct {
	JobID         uuid.UUID        `json:"jobId"`
	Status        models.JobStatus `json:"status"`
	AudioURL      string           `json:"audioUrl,omitempty"`
	TranscriptURL string           `json:"transcriptUrl,omitempty"`
	Error         *models.Failure  `json:"error,omitempty"`
	Progress      int              `json:"progress"`
	Step          string           `json:"step,omitempty"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// ErrJobFailed is returned by GenerateAndWait when the job ends FAILED or EXPIRED.
var ErrJobFailed = errors.New("job did not succeed")

// Generate submits a request and returns as soon as it is admitted.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (*Submission, error) {
	var sub Submission
	if err := c.do(ctx, http.MethodPost, "/generate", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GenerateAndWait submits req and polls until the job is terminal or ctx is done.
func (c *Client) GenerateAndWait(ctx context.Context, req models.GenerationRequest) (*Job, error) {
	sub, err := c.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, sub.JobID)
}

// Wait polls a job until it reaches a terminal state.
func (c *Client) Wait(ctx context.Context, id uuid.UUID) (*Job, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case models.JobStatusSucceeded:
			return job, nil
		case models.JobStatusFailed, models.JobStatusExpired:
			msg := string(job.Status)
			if job.Error != nil {
				msg = job.Error.Code + ": " + job.Error.Message
			}
			return job, fmt.Errorf("%w: %s", ErrJobFailed, msg)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download fetches the bytes behind an audio or transcript URL from a job view.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(url), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
