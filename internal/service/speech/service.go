// Package speech adapts speech-to-text and text-to-speech providers to the
// gateway's Transcriber and Synthesizer ports.
package speech

import (
	"context"
	"errors"
	"mime"
	"strings"

	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("speech: text is empty")

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (*speechmodel.Transcript, error)
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speechmodel.SynthesizeRequest) (*speechmodel.Audio, error)
}

// Provider bundles both directions, closed together on shutdown.
type Provider struct {
	Name        string
	Transcriber Transcriber
	Synthesizer Synthesizer
	closers     []func() error
}

// Close releases underlying clients.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// inferAudioFormat maps a MIME type to an audio format name.
func inferAudioFormat(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "audio/webm":
		return "webm"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/pcm", "audio/l16":
		return "pcm"
	default:
		return "webm"
	}
}
