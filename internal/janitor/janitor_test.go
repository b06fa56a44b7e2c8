package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSweepRemovesOnlyStaleMatches(t *testing.T) {
	tmp := t.TempDir()
	uploads := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)
	fresh := now.Add(-10 * time.Minute)

	touch(t, filepath.Join(tmp, "vibe-upload-old"), old)
	touch(t, filepath.Join(tmp, "vibe-upload-new"), fresh)
	touch(t, filepath.Join(tmp, "unrelated.txt"), old)
	touch(t, filepath.Join(uploads, "tts_1.mp3"), old)
	touch(t, filepath.Join(uploads, "avatar.png"), old)

	j := New(time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)),
		Target{Dir: tmp, Pattern: "vibe-upload-*"},
		Target{Dir: uploads, Pattern: "tts_*"},
	)
	j.now = func() time.Time { return now }

	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(tmp, "vibe-upload-old"))
	assert.FileExists(t, filepath.Join(tmp, "vibe-upload-new"))
	assert.FileExists(t, filepath.Join(tmp, "unrelated.txt"))
	assert.NoFileExists(t, filepath.Join(uploads, "tts_1.mp3"))
	assert.FileExists(t, filepath.Join(uploads, "avatar.png"))
}

func TestSweepMissingDir(t *testing.T) {
	j := New(time.Hour, nil, Target{Dir: filepath.Join(t.TempDir(), "missing"), Pattern: "tts_*"})
	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	j := New(time.Hour, nil)
	err := j.Run(context.Background(), "not a schedule")
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	j := New(time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx, "@every 1h") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
