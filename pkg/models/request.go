package models

import (
	"fmt"
	"net/url"
	"strings"
)

// InputChannel names one of the three primary input sources of a request.
type InputChannel string

const (
	InputURLs  InputChannel = "urls"
	InputText  InputChannel = "text"
	InputTopic InputChannel = "topic"
)

// DefaultPrecedence is used when no precedence is configured.
var DefaultPrecedence = []InputChannel{InputURLs, InputText, InputTopic}

// TTS model selectors accepted on requests.
const (
	TTSOpenAI      = "openai"
	TTSElevenLabs  = "elevenlabs"
	TTSEdge        = "edge"
	TTSGemini      = "gemini"
	TTSGeminiMulti = "geminimulti"
)

var validTTSModels = map[string]bool{
	TTSOpenAI:      true,
	TTSElevenLabs:  true,
	TTSEdge:        true,
	TTSGemini:      true,
	TTSGeminiMulti: true,
}

const (
	DefaultCreativity     = 0.7
	DefaultOutputLanguage = "English"
)

// Voices maps the two dialogue speakers to provider voice identifiers.
type Voices struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// GenerationRequest is the caller-supplied payload. It is snapshotted onto the job at
// admission and never changed afterwards.
type GenerationRequest struct {
	URLs  []string `json:"urls,omitempty"`
	Text  string   `json:"text,omitempty"`
	Topic string   `json:"topic,omitempty"`

	TTSModel             string   `json:"tts_model,omitempty"`
	Creativity           *float64 `json:"creativity,omitempty"`
	ConversationStyle    []string `json:"conversation_style,omitempty"`
	RolesPerson1         string   `json:"roles_person1,omitempty"`
	RolesPerson2         string   `json:"roles_person2,omitempty"`
	DialogueStructure    []string `json:"dialogue_structure,omitempty"`
	Name                 string   `json:"name,omitempty"`
	Tagline              string   `json:"tagline,omitempty"`
	OutputLanguage       string   `json:"output_language,omitempty"`
	UserInstructions     string   `json:"user_instructions,omitempty"`
	EngagementTechniques []string `json:"engagement_techniques,omitempty"`
	Voices               *Voices  `json:"voices,omitempty"`
	IsLongForm           bool     `json:"is_long_form,omitempty"`
	WordCount            int      `json:"word_count,omitempty"`
	WebhookURL           string   `json:"webhook_url,omitempty"`

	OpenAIKey     string `json:"openai_key,omitempty"`
	GoogleKey     string `json:"google_key,omitempty"`
	ElevenLabsKey string `json:"elevenlabs_key,omitempty"`
}

// ResolvedInput is the single primary input chosen for generation.
type ResolvedInput struct {
	Channel InputChannel
	URLs    []string
	Content string
}

// ResolveInput returns the first non-empty input channel in precedence order.
// The second return value is false when every channel is empty.
func (r GenerationRequest) ResolveInput(precedence []InputChannel) (ResolvedInput, bool) {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	for _, ch := range precedence {
		switch ch {
		case InputURLs:
			if urls := nonEmpty(r.URLs); len(urls) > 0 {
				return ResolvedInput{Channel: InputURLs, URLs: urls}, true
			}
		case InputText:
			if t := strings.TrimSpace(r.Text); t != "" {
				return ResolvedInput{Channel: InputText, Content: t}, true
			}
		case InputTopic:
			if t := strings.TrimSpace(r.Topic); t != "" {
				return ResolvedInput{Channel: InputTopic, Content: t}, true
			}
		}
	}
	return ResolvedInput{}, false
}

// Validate checks structural constraints. Errors wrap ErrInvalidRequest.
func (r GenerationRequest) Validate(precedence []InputChannel) error {
	if _, ok := r.ResolveInput(precedence); !ok {
		return fmt.Errorf("%w: at least one input source must be provided (urls, text or topic)", ErrInvalidRequest)
	}
	for _, u := range nonEmpty(r.URLs) {
		if !isHTTPURL(u) {
			return InvalidRequestError("urls", fmt.Sprintf("%q is not an absolute http(s) URL", u))
		}
	}
	if r.TTSModel != "" && !validTTSModels[r.TTSModel] {
		return InvalidRequestError("tts_model", fmt.Sprintf("unsupported model %q", r.TTSModel))
	}
	if r.Creativity != nil && (*r.Creativity < 0 || *r.Creativity > 1) {
		return InvalidRequestError("creativity", "must be between 0 and 1")
	}
	if r.WordCount < 0 {
		return InvalidRequestError("word_count", "must not be negative")
	}
	if r.WebhookURL != "" && !isHTTPURL(r.WebhookURL) {
		return InvalidRequestError("webhook_url", "must be an absolute http(s) URL")
	}
	return nil
}

// WithDefaults fills optional generation parameters.
func (r GenerationRequest) WithDefaults() GenerationRequest {
	out := r.Clone()
	out.URLs = nonEmpty(out.URLs)
	if out.TTSModel == "" {
		out.TTSModel = TTSOpenAI
	}
	if out.Creativity == nil {
		c := DefaultCreativity
		out.Creativity = &c
	}
	if out.OutputLanguage == "" {
		out.OutputLanguage = DefaultOutputLanguage
	}
	return out
}

// CreativityOrDefault returns the creativity scalar.
func (r GenerationRequest) CreativityOrDefault() float64 {
	if r.Creativity == nil {
		return DefaultCreativity
	}
	return *r.Creativity
}

// Clone returns a deep copy.
func (r GenerationRequest) Clone() GenerationRequest {
	c := r
	c.URLs = cloneSlice(r.URLs)
	c.ConversationStyle = cloneSlice(r.ConversationStyle)
	c.DialogueStructure = cloneSlice(r.DialogueStructure)
	c.EngagementTechniques = cloneSlice(r.EngagementTechniques)
	if r.Creativity != nil {
		v := *r.Creativity
		c.Creativity = &v
	}
	if r.Voices != nil {
		v := *r.Voices
		c.Voices = &v
	}
	return c
}

// WithoutKeys returns a copy with the provider override keys cleared.
func (r GenerationRequest) WithoutKeys() GenerationRequest {
	c := r.Clone()
	c.OpenAIKey, c.GoogleKey, c.ElevenLabsKey = "", "", ""
	return c
}

// ParsePrecedence parses a comma separated channel list such as "urls,text,topic".
func ParsePrecedence(s string) ([]InputChannel, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultPrecedence, nil
	}
	seen := map[InputChannel]bool{}
	var out []InputChannel
	for _, part := range strings.Split(s, ",") {
		ch := InputChannel(strings.ToLower(strings.TrimSpace(part)))
		switch ch {
		case InputURLs, InputText, InputTopic:
		default:
			return nil, fmt.Errorf("unknown input channel %q", part)
		}
		if seen[ch] {
			return nil, fmt.Errorf("duplicate input channel %q", part)
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
