package limiter

import (
	"context"
	"math/rand"
	"time"
)

// Jitter sleeps for a random duration in [0, max), honoring context
// cancellation. It spreads bursts of requests across time so that fetching
// many streams back to back does not hammer the agent endpoint all at once.
// A zero or negative max returns immediately.
func Jitter(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	d := time.Duration(rand.Int63n(int64(max)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// CallWithRetry calls fn and retries on retryable errors (e.g. HTTP 429
// rate limit responses from the pod or agent).
//
// If fn returns an error, retryAfter is called to determine whether the
// error is retryable; it should return a positive duration to retry after,
// or 0 (or negative) to indicate a non-retryable error.
//
// This keeps the limiter package free of symphony dependencies — the caller
// provides the retry classification logic via the retryAfter callback. There
// is deliberately no proactive client-side rate limiter here: the bot only
// tolerates the remote service's limits, it does not enforce its own.
func CallWithRetry[T any](
	ctx context.Context,
	maxRetries int,
	retryAfter func(error) time.Duration,
	fn func() (T, error),
) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		// Check if this is a retryable error.
		backoff := retryAfter(err)
		if backoff <= 0 {
			// Non-retryable error — return immediately.
			return result, err
		}

		if attempt == maxRetries {
			// Exhausted retries — return the error as-is.
			return result, err
		}

		// Sleep for the backoff duration, then retry.
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return result, err
}
