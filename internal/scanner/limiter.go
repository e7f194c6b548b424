package scanner

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PolitenessLimiter spaces out visits per host so a scan does not hammer
// the target. A zero delay disables limiting entirely.
type PolitenessLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

func NewPolitenessLimiter(delay time.Duration) *PolitenessLimiter {
	return &PolitenessLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until the host's rate limit admits another visit.
func (l *PolitenessLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.delay <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[parsed.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[parsed.Host] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
