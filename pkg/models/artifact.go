package models

import "time"

const (
	ContentTypeMPEG       = "audio/mpeg"
	ContentTypeTranscript = "text/plain; charset=utf-8"
)

// Artifact describes a stored generation output (audio or transcript).
type Artifact struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
