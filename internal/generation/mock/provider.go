package mock

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// MockScriptGenerator satisfies models.ScriptGenerator for development and tests.
type MockScriptGenerator struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.ScriptRequest) (models.Script, error)
}

func (m *MockScriptGenerator) Name() string { return m.Name_ }

func (m *MockScriptGenerator) Generate(ctx context.Context, req models.ScriptRequest) (models.Script, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.Script{}, nil
}

// MockSynthesizer satisfies models.Synthesizer for development and tests.
type MockSynthesizer struct {
	Name_          string
	SynthesizeFunc func(ctx context.Context, req models.SpeechRequest) ([]byte, error)
}

func (m *MockSynthesizer) Name() string { return m.Name_ }

func (m *MockSynthesizer) Synthesize(ctx context.Context, req models.SpeechRequest) ([]byte, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return nil, nil
}

// NewScriptGenerator returns a generator producing a short deterministic dialogue.
func NewScriptGenerator() *MockScriptGenerator {
	return &MockScriptGenerator{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.ScriptRequest) (models.Script, error) {
			show := req.Request.Name
			if show == "" {
				show = "the show"
			}
			subject := req.Input.Content
			if req.Input.Channel == models.InputURLs {
				subject = strings.Join(req.Input.URLs, ", ")
			}
			if len(subject) > 80 {
				subject = subject[:80]
			}
			turns := []models.Turn{
				{Speaker: models.SpeakerQuestion, Text: fmt.Sprintf("Welcome to %s. Today we talk about %s.", show, subject)},
				{Speaker: models.SpeakerAnswer, Text: "Thanks for having me, let's dive in."},
			}
			var b strings.Builder
			for _, t := range turns {
				fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
			}
			return models.Script{Transcript: b.String(), Turns: turns}, nil
		},
	}
}

// mpegHeader is an ID3v2.3 tag header with an empty body.
var mpegHeader = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// NewSynthesizer returns a synthesizer emitting placeholder MPEG bytes derived from the script.
func NewSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{
		Name_: "mock",
		SynthesizeFunc: func(_ context.Context, req models.SpeechRequest) ([]byte, error) {
			var buf bytes.Buffer
			buf.Write(mpegHeader)
			for _, t := range req.Script.Turns {
				buf.WriteString(t.Text)
			}
			return buf.Bytes(), nil
		},
	}
}

// NewFailingScriptGenerator returns a generator that always returns err.
func NewFailingScriptGenerator(err error) *MockScriptGenerator {
	return &MockScriptGenerator{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.ScriptRequest) (models.Script, error) {
			return models.Script{}, err
		},
	}
}

// NewFailingSynthesizer returns a synthesizer that always returns err.
func NewFailingSynthesizer(err error) *MockSynthesizer {
	return &MockSynthesizer{
		Name_: "mock-failing",
		SynthesizeFunc: func(_ context.Context, _ models.SpeechRequest) ([]byte, error) {
			return nil, err
		},
	}
}

// NewTimeoutScriptGenerator returns a generator that blocks until its context is done.
func NewTimeoutScriptGenerator() *MockScriptGenerator {
	return &MockScriptGenerator{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.ScriptRequest) (models.Script, error) {
			<-ctx.Done()
			return models.Script{}, fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, ctx.Err())
		},
	}
}

// NewTimeoutSynthesizer returns a synthesizer that blocks until its context is done.
func NewTimeoutSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{
		Name_: "mock-timeout",
		SynthesizeFunc: func(ctx context.Context, _ models.SpeechRequest) ([]byte, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, ctx.Err())
		},
	}
}

// Compile-time checks.
var (
	_ models.ScriptGenerator = (*MockScriptGenerator)(nil)
	_ models.Synthesizer     = (*MockSynthesizer)(nil)
)
