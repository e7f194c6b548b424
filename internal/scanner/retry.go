package scanner

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the per-page retry behaviour with exponential
// backoff and jitter.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy returns the default per-page policy.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Second,
		MaxBackoff:        15 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry reports whether a failed attempt should re-enter the visit
// loop. attempt is zero-based.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	return retryable(err)
}

// Backoff returns the wait before the next attempt, with ±25% jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}
