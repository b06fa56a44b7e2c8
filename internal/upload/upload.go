// Package upload stages a single multipart file on disk for processing.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/vibe-companion/backend/internal/apperr"
)

// Upload rejections. They are *apperr.Error values so handlers can render them
// directly.
var (
	ErrMissingFile  = apperr.New(apperr.InvalidInput, "No audio file uploaded", "Please record an audio message before sending.")
	ErrTooLarge     = apperr.New(apperr.InvalidInput, "File too large", "Audio file must be less than 10MB.")
	ErrTooManyFiles = apperr.New(apperr.InvalidInput, "Too many files", "Only one audio file is allowed.")
	ErrWrongType    = apperr.New(apperr.InvalidInput, "Invalid file type", "Only audio files are allowed.")
)

// multipartOverhead leaves room for boundaries and the other form fields.
const multipartOverhead = 1 << 20

// Options control what Stage accepts.
type Options struct {
	Field      string
	MaxBytes   int64
	MIMEPrefix string
	TempDir    string
}

// AudioOptions are the limits for recorded voice messages.
func AudioOptions(tempDir string) Options {
	return Options{Field: "audio", MaxBytes: 10 << 20, MIMEPrefix: "audio/", TempDir: tempDir}
}

// Staged is an uploaded file copied to TempDir. Release must be called once
// processing is done, whatever the outcome.
type Staged struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64

	once sync.Once
}

// Release removes the staged file. Safe to call more than once.
func (s *Staged) Release() error {
	var err error
	s.once.Do(func() {
		if rmErr := os.Remove(s.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}

// ReadAll returns the staged file's contents.
func (s *Staged) ReadAll() ([]byte, error) {
	return os.ReadFile(s.Path)
}

// Stage parses the multipart body of r and stages opts.Field. Other form
// values stay available through r.FormValue.
func Stage(w http.ResponseWriter, r *http.Request, opts Options) (*Staged, error) {
	r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(opts.MaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr), strings.Contains(err.Error(), "request body too large"):
			return nil, ErrTooLarge
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[opts.Field]
	switch {
	case len(headers) == 0:
		return nil, ErrMissingFile
	case len(headers) > 1:
		return nil, ErrTooManyFiles
	}
	header := headers[0]
	if header.Size > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, opts.MIMEPrefix) {
		return nil, ErrWrongType
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(opts.TempDir, "vibe-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	staged := &Staged{Path: dst.Name(), Filename: header.Filename, ContentType: contentType}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = staged.Release()
		return nil, fmt.Errorf("stage uploaded file: %w", err)
	}
	staged.Size = n
	return staged, nil
}
