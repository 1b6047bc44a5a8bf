package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/internal/generation/prompt"
	"github.com/kiranshivaraju/podcastgate/internal/generation/upstream"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const providerName = "openai"

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ScriptProvider implements models.ScriptGenerator using the chat completions API.
type ScriptProvider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewScriptProvider(cfg config.OpenAIConfig, client *http.Client) *ScriptProvider {
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ScriptProvider{cfg: cfg, client: client}
}

func (p *ScriptProvider) Name() string { return providerName }

func (p *ScriptProvider) Generate(ctx context.Context, req models.ScriptRequest) (models.Script, error) {
	apiKey := firstNonEmpty(req.Request.OpenAIKey, p.cfg.APIKey)
	if apiKey == "" {
		return models.Script{}, fmt.Errorf("%w: no OpenAI API key configured", models.ErrUpstreamError)
	}

	payload := chatRequest{
		Model:       p.cfg.Model,
		Temperature: req.Request.CreativityOrDefault(),
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System()},
			{Role: "user", Content: prompt.Build(req)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return models.Script{}, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return models.Script{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	body, err := upstream.Do(p.client, providerName, httpReq)
	if err != nil {
		return models.Script{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Script{}, fmt.Errorf("%w: decode chat response: %v", models.ErrUpstreamError, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return models.Script{}, fmt.Errorf("%w: chat response contained no content", models.ErrUpstreamError)
	}

	turns := prompt.ParseTurns(resp.Choices[0].Message.Content)
	return models.Script{Transcript: prompt.Transcript(turns), Turns: turns}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ models.ScriptGenerator = (*ScriptProvider)(nil)
