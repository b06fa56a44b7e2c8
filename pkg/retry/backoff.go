package retry

import (
	"context"
	"time"
)

// Policy holds exponential backoff parameters.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits for d; tests replace it. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is the policy for text and voice sends: 3 attempts, 1s base.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt-1))
}

// Do runs op until it succeeds or MaxAttempts is reached, and returns the last
// error on exhaustion. Attempts never overlap.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
