package session

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffPolicy implements hltv.RetryPolicy with jittered exponential
// backoff.
type BackoffPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewBackoffPolicy builds a policy. Nonpositive arguments fall back to
// sane defaults.
func NewBackoffPolicy(maxAttempts int, base, maxDelay time.Duration) *BackoffPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &BackoffPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   base,
		maxDelay:    maxDelay,
	}
}

// MaxAttempts returns the attempt ceiling per unit of work.
func (p *BackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the wait duration before the given retry attempt
// (attempt is zero-based: the delay after the first failure is
// Backoff(0)).
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
