package generation

import (
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/generation/elevenlabs"
	"github.com/kiranshivaraju/podcastgate/internal/generation/mock"
	"github.com/kiranshivaraju/podcastgate/internal/generation/openai"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// Providers bundles the script generator with the synthesizers keyed by tts_model.
type Providers struct {
	Script   models.ScriptGenerator
	speech   map[string]models.Synthesizer
	fallback models.Synthesizer
}

// NewProviders constructs the providers selected by cfg. Called once at server startup.
func NewProviders(cfg config.GenerationConfig) (*Providers, error) {
	switch cfg.TextProvider {
	case "mock":
		return &Providers{Script: mock.NewScriptGenerator(), fallback: mock.NewSynthesizer()}, nil
	case "openai":
		client := &http.Client{}
		return &Providers{
			Script: openai.NewScriptProvider(cfg.OpenAI, client),
			speech: map[string]models.Synthesizer{
				models.TTSOpenAI:     openai.NewSpeechProvider(cfg.OpenAI, client),
				models.TTSElevenLabs: elevenlabs.NewProvider(cfg.ElevenLabs, client),
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown text provider %q: must be one of openai, mock", cfg.TextProvider)
	}
}

// NewStaticProviders wires explicit collaborators; synth serves every tts_model.
func NewStaticProviders(script models.ScriptGenerator, synth models.Synthesizer) *Providers {
	return &Providers{Script: script, fallback: synth}
}

// Supports reports whether Synthesizer can serve ttsModel.
func (p *Providers) Supports(ttsModel string) bool {
	if ttsModel == "" {
		ttsModel = models.TTSOpenAI
	}
	_, ok := p.speech[ttsModel]
	return ok || p.fallback != nil
}

// Synthesizer returns the synthesizer for a tts_model selector.
func (p *Providers) Synthesizer(ttsModel string) (models.Synthesizer, error) {
	if ttsModel == "" {
		ttsModel = models.TTSOpenAI
	}
	if s, ok := p.speech[ttsModel]; ok {
		return s, nil
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	return nil, fmt.Errorf("%w: %w: %q", ErrUpstreamError, ErrUnsupportedTTS, ttsModel)
}
