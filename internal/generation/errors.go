package generation

import (
	"errors"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

var (
	ErrUpstreamTimeout = models.ErrUpstreamTimeout
	ErrUpstreamError   = models.ErrUpstreamError
	ErrTransient       = models.ErrTransient
	ErrUnsupportedTTS  = errors.New("tts model not available")
)
