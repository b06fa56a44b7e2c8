package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestGCSPublisherWritesPublicObject(t *testing.T) {
	var (
		gotBucket, gotObject string
		gotAttrs             gcs.ObjectAttrs
		w                    = &recordingWriter{}
	)
	p := &GCSPublisher{bucket: "vibe-audio", newWriter: func(_ context.Context, bucket, object string, attrs gcs.ObjectAttrs) io.WriteCloser {
		gotBucket, gotObject, gotAttrs = bucket, object, attrs
		return w
	}}

	url, err := p.Publish(context.Background(), []byte("mp3"), "tts_1700000000000.mp3", "")
	require.NoError(t, err)

	assert.Equal(t, "https://storage.googleapis.com/vibe-audio/tts-audio/tts_1700000000000.mp3", url)
	assert.Equal(t, "vibe-audio", gotBucket)
	assert.Equal(t, "tts-audio/tts_1700000000000.mp3", gotObject)
	assert.Equal(t, "audio/mpeg", gotAttrs.ContentType)
	assert.Equal(t, "public, max-age=3600", gotAttrs.CacheControl)
	assert.Equal(t, "publicRead", gotAttrs.PredefinedACL)
	assert.Equal(t, "mp3", w.String())
	assert.True(t, w.closed)
}

func TestGCSPublisherUnconfigured(t *testing.T) {
	_, err := NewGCSPublisher(nil, "bucket").Publish(context.Background(), []byte("x"), "a.mp3", "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = NewGCSPublisher(nil, "").Publish(context.Background(), []byte("x"), "a.mp3", "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestGCSPublisherUploadFailure(t *testing.T) {
	p := &GCSPublisher{bucket: "b", newWriter: func(context.Context, string, string, gcs.ObjectAttrs) io.WriteCloser {
		return &recordingWriter{closeErr: errors.New("403 forbidden")}
	}}
	_, err := p.Publish(context.Background(), []byte("x"), "a.mp3", "audio/mpeg")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "403 forbidden")
}

func TestLocalPublisher(t *testing.T) {
	dir := t.TempDir()
	l := Local{Dir: dir, BaseURL: "http://localhost:5000/"}

	url, err := l.Publish(context.Background(), []byte("mp3"), "tts_1.mp3", "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/uploads/tts_1.mp3", url)

	data, err := os.ReadFile(filepath.Join(dir, "tts_1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(data))

	_, err = l.Publish(context.Background(), []byte("x"), "../escape.mp3", "")
	assert.Error(t, err)
}

func TestFallbackUsesSecondary(t *testing.T) {
	dir := t.TempDir()
	f := Fallback{Primary: Unavailable{}, Secondary: Local{Dir: dir, BaseURL: "http://x"}}

	url, err := f.Publish(context.Background(), []byte("a"), "tts_2.mp3", "")
	require.NoError(t, err)
	assert.Equal(t, "http://x/uploads/tts_2.mp3", url)

	_, err = Fallback{Primary: Unavailable{}, Secondary: Unavailable{}}.Publish(context.Background(), nil, "n.mp3", "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "tts_1700000000123.mp3", FileName(time.UnixMilli(1700000000123)))
}
