package crawler

import (
	"context"
	"errors"
	"time"
)

// Defaults for the fixed retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// FixedRetryPolicy retries up to maxAttempts with a constant delay.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedRetryPolicy builds a policy; maxAttempts below one is treated as one.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// MaxAttempts returns the attempt ceiling.
func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	// Per-request timeouts are retried; only cancellation of the run stops.
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
