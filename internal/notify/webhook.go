// Package notify delivers job completion callbacks to caller-supplied webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const DefaultTimeout = 10 * time.Second

// Linker resolves artifact names to absolute or relative client URLs.
type Linker interface {
	AudioURL(name string) string
	TranscriptURL(name string) string
}

// Payload is the JSON body POSTed to a job's webhook_url.
type Payload struct {
	JobID         string          `json:"jobId"`
	Status        string          `json:"status"`
	AudioURL      string          `json:"audioUrl,omitempty"`
	TranscriptURL string          `json:"transcriptUrl,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Error         *models.Failure `json:"error,omitempty"`
}

// Webhook posts completion payloads. Delivery failures are logged and never returned,
// so they cannot affect job state.
type Webhook struct {
	client *http.Client
	links  Linker
}

func NewWebhook(links Linker, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Webhook{client: client, links: links}
}

// Notify sends the payload for job if it carries a webhook_url and is terminal.
func (w *Webhook) Notify(ctx context.Context, job *models.Job) {
	if job == nil || job.Request.WebhookURL == "" || !job.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	if err := w.send(ctx, job.Request.WebhookURL, w.payload(job)); err != nil {
		slog.Warn("webhook delivery failed",
			"job_id", job.ID,
			"status", job.Status,
			"error", err,
		)
		return
	}
	slog.Debug("webhook delivered", "job_id", job.ID, "status", job.Status)
}

func (w *Webhook) payload(job *models.Job) Payload {
	p := Payload{
		JobID:       job.ID.String(),
		Status:      string(job.Status),
		CompletedAt: job.CompletedAt,
		Error:       job.Failure,
	}
	if w.links != nil && job.Status == models.JobStatusSucceeded {
		if job.ArtifactName != nil {
			p.AudioURL = w.links.AudioURL(*job.ArtifactName)
		}
		if job.TranscriptName != nil {
			p.TranscriptURL = w.links.TranscriptURL(*job.TranscriptName)
		}
	}
	return p
}

func (w *Webhook) send(ctx context.Context, url string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "podcastgate-webhook/1")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
