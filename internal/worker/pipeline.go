package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/podcastgate/internal/artifact"
	"github.com/kiranshivaraju/podcastgate/internal/generation"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

var (
	errPanic   = errors.New("panic during generation")
	errStorage = errors.New("artifact storage failed")
	errNoInput = errors.New("job has no usable input")
)

type outcome struct {
	audio      string
	transcript string
	attempts   int
}

// run executes the script, speech and storage steps for job.
func (p *Pool) run(ctx context.Context, job *models.Job) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in generation pipeline",
				"job_id", job.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	req := job.Request
	input, ok := req.ResolveInput(p.cfg.Precedence)
	if !ok {
		return outcome{attempts: 1}, errNoInput
	}

	p.progress(ctx, job, models.ProgressScript, models.StepScript)
	var script models.Script
	n, err := p.retry(ctx, job, "script", p.cfg.TextTimeout, func(ctx context.Context) error {
		var err error
		script, err = p.providers.Script.Generate(ctx, models.ScriptRequest{Input: input, Request: req})
		return err
	})
	out.attempts = n
	if err != nil {
		return out, fmt.Errorf("generate script: %w", err)
	}

	synth, err := p.providers.Synthesizer(req.TTSModel)
	if err != nil {
		return out, err
	}
	voices := models.Voices{}
	if req.Voices != nil {
		voices = *req.Voices
	}

	p.progress(ctx, job, models.ProgressSpeech, models.StepSpeech)
	var audio []byte
	n, err = p.retry(ctx, job, "speech", p.cfg.TTSTimeout, func(ctx context.Context) error {
		var err error
		audio, err = synth.Synthesize(ctx, models.SpeechRequest{Script: script, Voices: voices, Request: req})
		return err
	})
	out.attempts = max(out.attempts, n)
	if err != nil {
		return out, fmt.Errorf("synthesize speech with %s: %w", synth.Name(), err)
	}

	p.progress(ctx, job, models.ProgressStoring, models.StepStoring)
	audioName, transcriptName := artifact.NewNames()
	storeCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()

	if _, err := p.artifacts.Put(storeCtx, transcriptName, []byte(script.Transcript)); err != nil {
		return out, fmt.Errorf("%w: transcript: %w", errStorage, err)
	}
	// Audio goes last so a visible audio artifact always has its transcript.
	if _, err := p.artifacts.Put(storeCtx, audioName, audio); err != nil {
		return out, fmt.Errorf("%w: audio: %w", errStorage, err)
	}

	out.audio = audioName
	out.transcript = transcriptName
	return out, nil
}

// progress records a checkpoint on the job. A failed update never fails the job.
func (p *Pool) progress(ctx context.Context, job *models.Job, pct int, step string) {
	if err := p.store.UpdateProgress(ctx, job.ID, pct, step); err != nil && ctx.Err() == nil {
		slog.Warn("failed to record job progress", "job_id", job.ID, "step", step, "error", err)
	}
}

// retry runs op with a per-attempt timeout and retries transient failures with exponential
// backoff. It returns the number of attempts made.
func (p *Pool) retry(ctx context.Context, job *models.Job, step string, timeout time.Duration, op func(context.Context) error) (int, error) {
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInitialInterval
	b.MaxInterval = p.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		attempts++
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := op(opCtx)
		if err == nil {
			return nil
		}
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, generation.ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %s exceeded %s: %w", generation.ErrUpstreamTimeout, step, timeout, err)
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		slog.Warn("retrying transient failure",
			"job_id", job.ID,
			"step", step,
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	})
	return attempts, err
}

func retryable(err error) bool {
	return errors.Is(err, generation.ErrTransient) && !errors.Is(err, generation.ErrUpstreamTimeout)
}

// classify maps a pipeline error onto the failure recorded on the job.
func classify(err error) models.Failure {
	switch {
	case errors.Is(err, errPanic), errors.Is(err, errNoInput):
		return models.Failure{
			Code:    models.FailureInternal,
			Message: "internal error while generating the podcast; this is not caused by your input",
		}
	case errors.Is(err, errStorage):
		return models.Failure{
			Code:           models.FailureInternal,
			Message:        "failed to store the generated podcast; retry later",
			Retryable:      true,
			RetryAfterSecs: 30,
		}
	case errors.Is(err, generation.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.Failure{
			Code:           models.FailureUpstreamTimeout,
			Message:        "the generation provider timed out; retry later",
			Retryable:      true,
			RetryAfterSecs: 60,
		}
	case errors.Is(err, generation.ErrUnsupportedTTS):
		return models.Failure{
			Code:    models.FailureUpstreamError,
			Message: "the requested tts_model is not available on this server",
		}
	default:
		f := models.Failure{
			Code:    models.FailureUpstreamError,
			Message: "the generation provider failed; this is not caused by your input",
		}
		if errors.Is(err, generation.ErrTransient) {
			f.Retryable = true
			f.RetryAfterSecs = 30
		}
		return f
	}
}
