// Package storage publishes synthesized audio at a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibe-companion/backend/internal/logging"
)

// ErrStorageUnavailable is returned when no backend is configured or an upload fails.
var ErrStorageUnavailable = errors.New("storage unavailable")

const (
	// ObjectPrefix is the folder TTS audio is written under.
	ObjectPrefix       = "tts-audio/"
	DefaultContentType = "audio/mpeg"
	CacheControl       = "public, max-age=3600"
)

// Publisher stores data under name and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, data []byte, name, contentType string) (string, error)
}

// FileName returns the object name for audio synthesized at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("tts_%d.mp3", now.UnixMilli())
}

// Unavailable always fails. It stands in when nothing is configured.
type Unavailable struct{}

// Publish implements Publisher.
func (Unavailable) Publish(context.Context, []byte, string, string) (string, error) {
	return "", fmt.Errorf("no storage backend configured: %w", ErrStorageUnavailable)
}

// Fallback tries Primary first and Secondary if it fails.
type Fallback struct {
	Primary   Publisher
	Secondary Publisher
}

// Publish implements Publisher.
func (f Fallback) Publish(ctx context.Context, data []byte, name, contentType string) (string, error) {
	url, err := f.Primary.Publish(ctx, data, name, contentType)
	if err == nil {
		return url, nil
	}
	logging.FromContext(ctx).Warn("primary storage failed, using fallback",
		slog.String("name", name), slog.Any(logging.ErrorField, err))
	url, fbErr := f.Secondary.Publish(ctx, data, name, contentType)
	if fbErr != nil {
		return "", errors.Join(err, fbErr)
	}
	return url, nil
}
