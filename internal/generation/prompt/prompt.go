// Package prompt builds dialogue prompts and parses speaker-tagged scripts.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

const (
	defaultWordCount  = 2000
	longFormWordCount = 6000
)

const systemPrompt = `You are a podcast script writer. Write a natural two-person dialogue.
Wrap every utterance of the first speaker in <Person1>...</Person1> and every utterance of the
second speaker in <Person2>...</Person2>. Output nothing outside those tags.`

// System returns the fixed system instruction.
func System() string { return systemPrompt }

// Build renders the user prompt for a script request.
func Build(req models.ScriptRequest) string {
	r := req.Request
	var b strings.Builder

	switch req.Input.Channel {
	case models.InputURLs:
		b.WriteString("Create a podcast conversation discussing the content published at these URLs:\n")
		for _, u := range req.Input.URLs {
			fmt.Fprintf(&b, "- %s\n", u)
		}
	case models.InputTopic:
		fmt.Fprintf(&b, "Create a podcast conversation about the topic: %s\n", req.Input.Content)
	default:
		b.WriteString("Create a podcast conversation based on this source text:\n<source>\n")
		b.WriteString(req.Input.Content)
		b.WriteString("\n</source>\n")
	}

	b.WriteString("\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "Podcast name: %s\n", r.Name)
	}
	if r.Tagline != "" {
		fmt.Fprintf(&b, "Tagline: %s\n", r.Tagline)
	}
	language := r.OutputLanguage
	if language == "" {
		language = models.DefaultOutputLanguage
	}
	fmt.Fprintf(&b, "Language: %s\n", language)
	if r.RolesPerson1 != "" {
		fmt.Fprintf(&b, "Person1 role: %s\n", r.RolesPerson1)
	}
	if r.RolesPerson2 != "" {
		fmt.Fprintf(&b, "Person2 role: %s\n", r.RolesPerson2)
	}
	writeList(&b, "Conversation style", r.ConversationStyle)
	writeList(&b, "Dialogue structure", r.DialogueStructure)
	writeList(&b, "Engagement techniques", r.EngagementTechniques)
	fmt.Fprintf(&b, "Target length: about %d words\n", WordTarget(r))
	if r.UserInstructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", r.UserInstructions)
	}
	return b.String()
}

// WordTarget is the requested word count, or a default that depends on long-form mode.
func WordTarget(r models.GenerationRequest) int {
	if r.WordCount > 0 {
		return r.WordCount
	}
	if r.IsLongForm {
		return longFormWordCount
	}
	return defaultWordCount
}

func writeList(b *strings.Builder, label string, items []string) {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) > 0 {
		fmt.Fprintf(b, "%s: %s\n", label, strings.Join(kept, ", "))
	}
}

var turnPattern = regexp.MustCompile(`(?s)<(Person[12])>(.*?)</Person[12]>`)

// ParseTurns extracts speaker turns from a tagged script. Untagged text becomes a single
// Person1 turn so that providers ignoring the format still produce audio.
func ParseTurns(script string) []models.Turn {
	var turns []models.Turn
	for _, m := range turnPattern.FindAllStringSubmatch(script, -1) {
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		turns = append(turns, models.Turn{Speaker: m[1], Text: text})
	}
	if len(turns) == 0 {
		if text := strings.TrimSpace(script); text != "" {
			turns = []models.Turn{{Speaker: models.SpeakerQuestion, Text: text}}
		}
	}
	return turns
}

// Transcript renders turns as plain "Speaker: text" lines.
func Transcript(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
	}
	return b.String()
}
