// Package retry centralizes the retry policy applied to external calls. The
// order platform and payment-reversal collaborators share one policy object
// instead of scattering ad hoc retry loops through the call sites.
package retry

import (
	"context"
	"time"
)

// Policy configures bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy is the policy applied to money-affecting external calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// Do executes fn with backoff until it succeeds, the attempt budget is
// exhausted, retryable rejects the error, or ctx is cancelled. The last error
// is returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := p.BaseDelay

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}

		if attempt < p.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * p.Multiplier)
				if backoff > p.MaxDelay {
					backoff = p.MaxDelay
				}
			}
		}
	}
	return zero, lastErr
}
