package models

import (
	"context"
	"errors"
)

// Upstream failure classes returned by generation collaborators.
var (
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamError   = errors.New("upstream error")
	// ErrTransient marks failures worth retrying: rate limiting, 5xx, dropped connections.
	ErrTransient = errors.New("transient upstream failure")
)

// Speakers in a generated dialogue.
const (
	SpeakerQuestion = "Person1"
	SpeakerAnswer   = "Person2"
)

// Turn is one utterance in a dialogue script.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is the text-generation output that is handed to speech synthesis.
type Script struct {
	Transcript string `json:"transcript"`
	Turns      []Turn `json:"turns"`
}

// ScriptRequest carries everything a ScriptGenerator needs.
type ScriptRequest struct {
	Input   ResolvedInput
	Request GenerationRequest
}

// SpeechRequest carries everything a Synthesizer needs.
type SpeechRequest struct {
	Script  Script
	Voices  Voices
	Request GenerationRequest
}

// ScriptGenerator turns the resolved input into a dialogue script.
type ScriptGenerator interface {
	Name() string
	Generate(ctx context.Context, req ScriptRequest) (Script, error)
}

// Synthesizer renders a script into MPEG audio bytes.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}
