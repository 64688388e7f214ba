// Package retry implements the bounded exponential backoff-with-jitter
// used to retry a failed per-symbol reconciliation attempt.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how a failed operation should be retried.
type Policy struct {
	// MaxRetries is the number of retries attempted after the first
	// failure (spec's MAX_RECONCILE_RETRIES).
	MaxRetries int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied per attempt.
	BackoffFactor float64

	// JitterFactor adds up to this fraction of the backoff as random jitter,
	// to avoid every retrying symbol waking up on the same tick.
	JitterFactor float64
}

// DefaultPolicy matches the spec's two-retry reconciliation budget.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Backoff computes the delay before the given retry attempt (1-indexed:
// attempt 1 is the delay before the first retry).
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffFactor
	}
	if max := float64(p.MaxBackoff); p.MaxBackoff > 0 && backoff > max {
		backoff = max
	}
	jitter := rand.Float64() * p.JitterFactor * backoff
	return time.Duration(backoff + jitter)
}

// Do runs fn, retrying up to MaxRetries times with backoff between
// attempts whenever fn returns a non-nil error. It returns the last error
// if every attempt failed, or nil on the first success. It stops early if
// ctx is cancelled while waiting between attempts.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt + 1)):
		}
	}
	return lastErr
}
