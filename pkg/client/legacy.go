package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/donovanhide/eventsource"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// maxPollErrors bounds consecutive transport failures before Result gives up.
const maxPollErrors = 3

// ErrLegacyFailed carries the message of an error event.
var ErrLegacyFailed = errors.New("legacy generation failed")

// LegacyFile is one entry of a complete event.
type LegacyFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Legacy speaks the two-phase submit and event-stream protocol.
type Legacy struct {
	*Client
}

func NewLegacy(baseURL, apiKey string, opts ...Option) *Legacy {
	return &Legacy{Client: New(baseURL, apiKey, opts...)}
}

// Submit posts the positional inputs and returns the event id.
func (l *Legacy) Submit(ctx context.Context, in models.LegacyInputs) (string, error) {
	req, err := l.newRequest(ctx, http.MethodPost, "/call/process_inputs",
		map[string]any{"data": in.Positional()})
	if err != nil {
		return "", err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return out.EventID, nil
}

// Result polls the result endpoint for eventID until a complete or error event arrives.
// Each response carries a single event; after a heartbeat the next poll waits for the
// retry interval the server advertised, or the client poll interval when it sent none.
func (l *Legacy) Result(ctx context.Context, eventID string) ([]LegacyFile, error) {
	failures := 0
	for {
		wait := l.pollInterval

		ev, err := l.poll(ctx, eventID)
		switch {
		case err == nil:
			failures = 0
			switch ev.Event() {
			case "complete":
				var files []LegacyFile
				if err := json.Unmarshal([]byte(ev.Data()), &files); err != nil {
					return nil, fmt.Errorf("decode complete event: %w", err)
				}
				return files, nil
			case "error":
				var msg string
				if err := json.Unmarshal([]byte(ev.Data()), &msg); err != nil {
					msg = ev.Data()
				}
				return nil, fmt.Errorf("%w: %s", ErrLegacyFailed, msg)
			}
			if r, ok := ev.(interface{ Retry() int64 }); ok && r.Retry() > 0 {
				wait = time.Duration(r.Retry()) * time.Millisecond
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return nil, err
			}
			failures++
			if failures >= maxPollErrors {
				return nil, err
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// poll fetches the single event the server sends for one GET.
func (l *Legacy) poll(ctx context.Context, eventID string) (eventsource.Event, error) {
	req, err := l.newRequest(ctx, http.MethodGet, "/call/process_inputs/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	ev, err := eventsource.NewDecoder(resp.Body).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode result event: %w", err)
	}
	return ev, nil
}

// GenerateAndWait submits in and waits for the finished audio.
func (l *Legacy) GenerateAndWait(ctx context.Context, in models.LegacyInputs) (LegacyFile, error) {
	id, err := l.Submit(ctx, in)
	if err != nil {
		return LegacyFile{}, err
	}
	files, err := l.Result(ctx, id)
	if err != nil {
		return LegacyFile{}, err
	}
	if len(files) == 0 {
		return LegacyFile{}, fmt.Errorf("%w: no files in complete event", ErrLegacyFailed)
	}
	return files[0], nil
}
