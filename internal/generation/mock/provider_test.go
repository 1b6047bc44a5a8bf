package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/generation/mock"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.ScriptRequest {
	return models.ScriptRequest{
		Input:   models.ResolvedInput{Channel: models.InputTopic, Content: "distributed systems"},
		Request: models.GenerationRequest{Topic: "distributed systems", Name: "Infra Hour"},
	}
}

func TestNewScriptGenerator(t *testing.T) {
	g := mock.NewScriptGenerator()
	assert.Equal(t, "mock", g.Name())

	script, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, script.Turns, 2)
	assert.Equal(t, models.SpeakerQuestion, script.Turns[0].Speaker)
	assert.Contains(t, script.Turns[0].Text, "Infra Hour")
	assert.Contains(t, script.Turns[0].Text, "distributed systems")
	assert.Contains(t, script.Transcript, "Person2: ")
}

func TestNewScriptGenerator_Deterministic(t *testing.T) {
	g := mock.NewScriptGenerator()
	a, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewSynthesizer(t *testing.T) {
	g := mock.NewScriptGenerator()
	script, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)

	audio, err := mock.NewSynthesizer().Synthesize(context.Background(), models.SpeechRequest{Script: script})
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(audio[:3]))
	assert.Greater(t, len(audio), 10)
}

func TestFailingProviders(t *testing.T) {
	boom := errors.New("boom")

	_, err := mock.NewFailingScriptGenerator(boom).Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, boom)

	_, err = mock.NewFailingSynthesizer(boom).Synthesize(context.Background(), models.SpeechRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestTimeoutProviders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mock.NewTimeoutScriptGenerator().Generate(ctx, sampleRequest())
	assert.ErrorIs(t, err, models.ErrUpstreamTimeout)

	_, err = mock.NewTimeoutSynthesizer().Synthesize(ctx, models.SpeechRequest{})
	assert.ErrorIs(t, err, models.ErrUpstreamTimeout)
}

func TestZeroValueMocks(t *testing.T) {
	var g mock.MockScriptGenerator
	script, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, script.Turns)

	var s mock.MockSynthesizer
	audio, err := s.Synthesize(context.Background(), models.SpeechRequest{})
	require.NoError(t, err)
	assert.Nil(t, audio)
}
