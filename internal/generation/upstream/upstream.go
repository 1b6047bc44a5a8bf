// Package upstream sends requests to generation providers and classifies their failures.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const (
	maxErrorBody    = 512
	maxResponseBody = 64 << 20
)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Do executes req and returns the response body. Errors wrap models.ErrUpstreamTimeout or
// models.ErrUpstreamError, and additionally models.ErrTransient when a retry may succeed.
func Do(client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(req.Context(), provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		slog.Warn("upstream request failed",
			"provider", provider,
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
		)
		if serr.Transient() {
			return nil, fmt.Errorf("%w: %w: %w", models.ErrUpstreamError, models.ErrTransient, serr)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrUpstreamError, serr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, classify(req.Context(), provider, err)
	}
	return body, nil
}

func classify(ctx context.Context, provider string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", models.ErrUpstreamTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", models.ErrUpstreamError, provider, err)
	}
	return fmt.Errorf("%w: %w: %s: %v", models.ErrUpstreamError, models.ErrTransient, provider, err)
}
