package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LegacyFieldCount is the length of the positional array used by the two-phase protocol.
const LegacyFieldCount = 17

// Positions in the legacy positional array.
const (
	legacyText = iota
	legacyURLs
	legacyPDFFiles
	legacyImageFiles
	legacyGeminiKey
	legacyOpenAIKey
	legacyElevenLabsKey
	legacyWordCount
	legacyConversationStyle
	legacyRolesPerson1
	legacyRolesPerson2
	legacyDialogueStructure
	legacyName
	legacyTagline
	legacyTTSModel
	legacyCreativity
	legacyUserInstructions
)

// LegacyInputs is the named form of the legacy positional parameters. Position matters
// only when decoding or encoding the wire array.
type LegacyInputs struct {
	Text              string
	URLs              []string
	PDFFiles          int
	ImageFiles        int
	GeminiKey         string
	OpenAIKey         string
	ElevenLabsKey     string
	WordCount         int
	ConversationStyle []string
	RolesPerson1      string
	RolesPerson2      string
	DialogueStructure []string
	Name              string
	Tagline           string
	TTSModel          string
	Creativity        float64
	UserInstructions  string
}

// DefaultLegacyInputs returns the values used for missing or null positions.
func DefaultLegacyInputs() LegacyInputs {
	return LegacyInputs{
		WordCount:         2000,
		ConversationStyle: []string{"engaging", "fast-paced", "enthusiastic"},
		RolesPerson1:      "main summarizer",
		RolesPerson2:      "questioner",
		DialogueStructure: []string{"Introduction", "Main Content Summary", "Conclusion"},
		Name:              "PODCASTFY",
		Tagline:           "Personal Generative AI Podcast",
		TTSModel:          TTSOpenAI,
		Creativity:        DefaultCreativity,
	}
}

// DecodeLegacyInputs decodes a positional array. Shorter arrays are padded with defaults;
// extra trailing entries are ignored.
func DecodeLegacyInputs(data []json.RawMessage) (LegacyInputs, error) {
	in := DefaultLegacyInputs()
	var err error
	field := func(i int) json.RawMessage {
		if i >= len(data) || isNull(data[i]) {
			return nil
		}
		return data[i]
	}
	wrap := func(name string, e error) error {
		return InvalidRequestError("data."+name, e.Error())
	}

	if raw := field(legacyText); raw != nil {
		if in.Text, err = decodeString(raw); err != nil {
			return in, wrap("text", err)
		}
	}
	if raw := field(legacyURLs); raw != nil {
		if in.URLs, err = decodeList(raw); err != nil {
			return in, wrap("urls", err)
		}
	}
	if raw := field(legacyPDFFiles); raw != nil {
		in.PDFFiles = countEntries(raw)
	}
	if raw := field(legacyImageFiles); raw != nil {
		in.ImageFiles = countEntries(raw)
	}
	for _, f := range []struct {
		pos  int
		name string
		dst  *string
	}{
		{legacyGeminiKey, "google_key", &in.GeminiKey},
		{legacyOpenAIKey, "openai_key", &in.OpenAIKey},
		{legacyElevenLabsKey, "elevenlabs_key", &in.ElevenLabsKey},
		{legacyRolesPerson1, "roles_person1", &in.RolesPerson1},
		{legacyRolesPerson2, "roles_person2", &in.RolesPerson2},
		{legacyName, "name", &in.Name},
		{legacyTagline, "tagline", &in.Tagline},
		{legacyTTSModel, "tts_model", &in.TTSModel},
		{legacyUserInstructions, "user_instructions", &in.UserInstructions},
	} {
		raw := field(f.pos)
		if raw == nil {
			continue
		}
		s, err := decodeString(raw)
		if err != nil {
			return in, wrap(f.name, err)
		}
		if s != "" {
			*f.dst = s
		}
	}
	if raw := field(legacyWordCount); raw != nil {
		n, err := decodeNumber(raw)
		if err != nil {
			return in, wrap("word_count", err)
		}
		in.WordCount = int(n)
	}
	if raw := field(legacyConversationStyle); raw != nil {
		if l, err := decodeList(raw); err != nil {
			return in, wrap("conversation_style", err)
		} else if len(l) > 0 {
			in.ConversationStyle = l
		}
	}
	if raw := field(legacyDialogueStructure); raw != nil {
		if l, err := decodeList(raw); err != nil {
			return in, wrap("dialogue_structure", err)
		} else if len(l) > 0 {
			in.DialogueStructure = l
		}
	}
	if raw := field(legacyCreativity); raw != nil {
		if in.Creativity, err = decodeNumber(raw); err != nil {
			return in, wrap("creativity", err)
		}
	}
	return in, nil
}

// Request maps the legacy record onto a GenerationRequest.
func (l LegacyInputs) Request() GenerationRequest {
	c := l.Creativity
	req := GenerationRequest{
		URLs:              cloneSlice(l.URLs),
		Text:              l.Text,
		TTSModel:          strings.ToLower(l.TTSModel),
		Creativity:        &c,
		ConversationStyle: cloneSlice(l.ConversationStyle),
		RolesPerson1:      l.RolesPerson1,
		RolesPerson2:      l.RolesPerson2,
		DialogueStructure: cloneSlice(l.DialogueStructure),
		Name:              l.Name,
		Tagline:           l.Tagline,
		UserInstructions:  l.UserInstructions,
		WordCount:         l.WordCount,
		OpenAIKey:         l.OpenAIKey,
		GoogleKey:         l.GeminiKey,
		ElevenLabsKey:     l.ElevenLabsKey,
	}
	return req
}

// Positional encodes l into the wire array.
func (l LegacyInputs) Positional() []any {
	out := make([]any, LegacyFieldCount)
	out[legacyText] = l.Text
	out[legacyURLs] = strings.Join(l.URLs, "\n")
	out[legacyPDFFiles] = []any{}
	out[legacyImageFiles] = []any{}
	out[legacyGeminiKey] = l.GeminiKey
	out[legacyOpenAIKey] = l.OpenAIKey
	out[legacyElevenLabsKey] = l.ElevenLabsKey
	out[legacyWordCount] = l.WordCount
	out[legacyConversationStyle] = l.ConversationStyle
	out[legacyRolesPerson1] = l.RolesPerson1
	out[legacyRolesPerson2] = l.RolesPerson2
	out[legacyDialogueStructure] = l.DialogueStructure
	out[legacyName] = l.Name
	out[legacyTagline] = l.Tagline
	out[legacyTTSModel] = l.TTSModel
	out[legacyCreativity] = l.Creativity
	out[legacyUserInstructions] = l.UserInstructions
	return out
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected a string")
	}
	return strings.TrimSpace(s), nil
}

// decodeList accepts a JSON array of strings, or a string separated by commas or newlines.
func decodeList(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return nonEmpty(list), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected a list or a comma separated string")
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	return nonEmpty(parts), nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected a number")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("expected a number")
	}
	return f, nil
}

func countEntries(raw json.RawMessage) int {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return 0
	}
	return len(list)
}
