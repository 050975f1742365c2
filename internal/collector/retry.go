package collector

import (
	"context"
	"errors"
	"log"
	"time"
)

// permanent marks an error that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// retryWithBackoff runs fn up to maxAttempts times, doubling the delay after
// each transient failure. Permanent errors and context cancellation stop
// immediately.
func retryWithBackoff(ctx context.Context, op string, maxAttempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(err) || attempt == maxAttempts-1 {
			break
		}

		delay := base * (1 << attempt)
		log.Printf("[collector] %s attempt %d/%d failed: %v, retrying in %v", op, attempt+1, maxAttempts, err, delay)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}
