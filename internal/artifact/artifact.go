// Package artifact stores generated audio and transcripts.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

var (
	ErrNotFound    = models.ErrNotFound
	ErrInvalidName = errors.New("invalid artifact name")
)

const (
	AudioExt      = ".mp3"
	TranscriptExt = ".txt"
	namePrefix    = "podcast_"
)

// Store persists artifact bytes under opaque names. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (models.Artifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, models.Artifact, error)
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

var namePattern = regexp.MustCompile(`^podcast_[0-9a-f]{32}\.(mp3|txt)$`)

// NewNames returns a fresh audio name and its matching transcript name.
func NewNames() (audio, transcript string) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return namePrefix + token + AudioExt, namePrefix + token + TranscriptExt
}

// ValidName reports whether name has the shape produced by NewNames.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// IsTranscript reports whether name refers to a transcript.
func IsTranscript(name string) bool {
	return strings.HasSuffix(name, TranscriptExt)
}

// ContentType maps an artifact name to its MIME type.
func ContentType(name string) string {
	if IsTranscript(name) {
		return models.ContentTypeTranscript
	}
	return models.ContentTypeMPEG
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// New builds the artifact store selected by cfg.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3StoreFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q: must be one of fs, s3", cfg.Backend)
	}
}
