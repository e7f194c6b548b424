package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetryByErrorKind(t *testing.T) {
	policy := NewRetryPolicy(2)

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"navigation first attempt", 0, newPageError(ErrorKindNavigation, "https://a", errors.New("timeout")), true},
		{"navigation second attempt", 1, newPageError(ErrorKindNavigation, "https://a", errors.New("timeout")), true},
		{"retries exhausted", 2, newPageError(ErrorKindNavigation, "https://a", errors.New("timeout")), false},
		{"extraction not retried", 0, newPageError(ErrorKindExtraction, "https://a", errors.New("js failed")), false},
		{"browser fatal not retried", 0, newPageError(ErrorKindBrowserFatal, "https://a", errors.New("target closed")), false},
		{"deadline exceeded retried", 0, context.DeadlineExceeded, true},
		{"plain error not retried", 0, errors.New("boom"), false},
		{"nil error", 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ShouldRetry(tt.attempt, tt.err))
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	policy := NewRetryPolicy(5)

	for attempt := 0; attempt < 8; attempt++ {
		base := float64(policy.InitialBackoff) * pow(policy.BackoffMultiplier, attempt)
		if base > float64(policy.MaxBackoff) {
			base = float64(policy.MaxBackoff)
		}
		lo := time.Duration(base * 0.75)
		hi := time.Duration(base * 1.25)

		for trial := 0; trial < 50; trial++ {
			got := policy.Backoff(attempt)
			assert.GreaterOrEqual(t, got, lo, "Backoff(%d) below jitter window", attempt)
			assert.LessOrEqual(t, got, hi, "Backoff(%d) above jitter window", attempt)
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestBrowserFatalDetection(t *testing.T) {
	assert.False(t, browserFatal(context.Canceled), "caller cancellation treated as browser death")
	assert.True(t, browserFatal(errors.New("websocket: close 1006 (abnormal closure)")))
	assert.True(t, browserFatal(newPageError(ErrorKindBrowserFatal, "https://a", errors.New("chrome exited"))))
}
