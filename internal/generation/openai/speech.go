package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/generation/upstream"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// SpeechProvider implements models.Synthesizer using the audio speech API. Each turn is
// synthesized separately and the MPEG frames are concatenated.
type SpeechProvider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewSpeechProvider(cfg config.OpenAIConfig, client *http.Client) *SpeechProvider {
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SpeechProvider{cfg: cfg, client: client}
}

func (p *SpeechProvider) Name() string { return providerName }

func (p *SpeechProvider) Synthesize(ctx context.Context, req models.SpeechRequest) ([]byte, error) {
	apiKey := firstNonEmpty(req.Request.OpenAIKey, p.cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no OpenAI API key configured", models.ErrUpstreamError)
	}
	if len(req.Script.Turns) == 0 {
		return nil, fmt.Errorf("%w: script has no turns", models.ErrUpstreamError)
	}

	var audio bytes.Buffer
	for _, turn := range req.Script.Turns {
		voice := firstNonEmpty(req.Voices.Question, p.cfg.VoiceQ)
		if turn.Speaker == models.SpeakerAnswer {
			voice = firstNonEmpty(req.Voices.Answer, p.cfg.VoiceA)
		}
		chunk, err := p.speak(ctx, apiKey, voice, turn.Text)
		if err != nil {
			return nil, err
		}
		audio.Write(chunk)
	}
	return audio.Bytes(), nil
}

func (p *SpeechProvider) speak(ctx context.Context, apiKey, voice, text string) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          p.cfg.TTSModel,
		Voice:          voice,
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", models.ContentTypeMPEG)
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	return upstream.Do(p.client, providerName, httpReq)
}

var _ models.Synthesizer = (*SpeechProvider)(nil)
