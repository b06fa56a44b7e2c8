// Package janitor removes stale upload temp files and locally published TTS audio.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vibe-companion/backend/internal/logging"
)

// Target is one directory swept for files matching Pattern.
type Target struct {
	Dir     string
	Pattern string
}

// Janitor deletes files older than MaxAge on a cron schedule.
type Janitor struct {
	targets []Target
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a janitor for the given targets.
func New(maxAge time.Duration, logger *slog.Logger, targets ...Target) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{targets: targets, maxAge: maxAge, logger: logger, now: time.Now}
}

// Run sweeps on schedule until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Warn("janitor sweep failed", slog.Any(logging.ErrorField, err))
		}
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	c.Start()
	j.logger.Info("janitor started", slog.String("schedule", schedule), slog.Duration("max_age", j.maxAge))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Sweep removes expired files once and returns how many were deleted.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)
	var (
		removed int
		errs    []error
	)
	for _, t := range j.targets {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := sweepTarget(t, cutoff)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if removed > 0 {
		j.logger.Info("janitor removed stale files", slog.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

func sweepTarget(t Target, cutoff time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(t.Dir, t.Pattern))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", t.Pattern, err)
	}

	var (
		removed int
		errs    []error
	)
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
