package retry

import (
	"context"
	"time"
)

// Do invokes fn up to maxAttempts times, sleeping the configured backoff
// interval between failures. It returns nil on the first success, the last
// error once attempts are exhausted, and the context error if the context
// is cancelled while waiting.
func Do(ctx context.Context, cfg *BackoffConfig, maxAttempts int, fn func(context.Context) error) error {
	if cfg == nil {
		cfg = DefaultBackoffConfig()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
