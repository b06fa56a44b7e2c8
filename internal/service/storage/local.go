package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes audio into a directory served under /uploads.
type Local struct {
	Dir     string
	BaseURL string
}

// Publish implements Publisher.
func (l Local) Publish(_ context.Context, data []byte, name, _ string) (string, error) {
	if l.Dir == "" {
		return "", fmt.Errorf("uploads dir not configured: %w", ErrStorageUnavailable)
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %v: %w", err, ErrStorageUnavailable)
	}
	if err := os.WriteFile(filepath.Join(l.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %v: %w", name, err, ErrStorageUnavailable)
	}
	return strings.TrimRight(l.BaseURL, "/") + "/uploads/" + name, nil
}
