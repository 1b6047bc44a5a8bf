package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/generation/upstream"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const providerName = "elevenlabs"

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Provider implements models.Synthesizer using the ElevenLabs text-to-speech API.
type Provider struct {
	cfg    config.ElevenLabsConfig
	client *http.Client
}

func NewProvider(cfg config.ElevenLabsConfig, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Synthesize(ctx context.Context, req models.SpeechRequest) ([]byte, error) {
	apiKey := strings.TrimSpace(req.Request.ElevenLabsKey)
	if apiKey == "" {
		apiKey = p.cfg.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no ElevenLabs API key configured", models.ErrUpstreamError)
	}
	if len(req.Script.Turns) == 0 {
		return nil, fmt.Errorf("%w: script has no turns", models.ErrUpstreamError)
	}

	var audio bytes.Buffer
	for _, turn := range req.Script.Turns {
		voice := pick(req.Voices.Question, p.cfg.VoiceQ)
		if turn.Speaker == models.SpeakerAnswer {
			voice = pick(req.Voices.Answer, p.cfg.VoiceA)
		}
		chunk, err := p.speak(ctx, apiKey, voice, turn.Text)
		if err != nil {
			return nil, err
		}
		audio.Write(chunk)
	}
	return audio.Bytes(), nil
}

func (p *Provider) speak(ctx context.Context, apiKey, voiceID, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: p.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode elevenlabs request: %w", err)
	}

	endpoint := p.cfg.BaseURL + "/" + url.PathEscape(voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	httpReq.Header.Set("Accept", models.ContentTypeMPEG)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", apiKey)

	return upstream.Do(p.client, providerName, httpReq)
}

func pick(override, fallback string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	return fallback
}

var _ models.Synthesizer = (*Provider)(nil)
