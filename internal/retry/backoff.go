// Package retry computes retry backoff schedules from a server's configured
// connection retry policy. The router itself never retries; the transport
// layer applies these schedules when connecting to the chosen server.
package retry

import (
	"math"
	"time"

	"github.com/avolkov/mcprouter/internal/config"
)

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait before the given retry attempt.
	// Attempts are numbered from 0.
	Next(attempt int) time.Duration
}

// LinearBackoff grows the delay by the base delay each attempt.
type LinearBackoff struct {
	delay time.Duration
	max   time.Duration
}

// NewLinearBackoff creates a new linear backoff.
func NewLinearBackoff(delay, max time.Duration) *LinearBackoff {
	return &LinearBackoff{delay: delay, max: max}
}

// Next implements Backoff.
func (b *LinearBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := time.Duration(attempt+1) * b.delay
	if b.max > 0 && backoff > b.max {
		backoff = b.max
	}
	return backoff
}

// ExponentialBackoff doubles the delay each attempt.
type ExponentialBackoff struct {
	delay time.Duration
	max   time.Duration
}

// NewExponentialBackoff creates a new exponential backoff.
func NewExponentialBackoff(delay, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{delay: delay, max: max}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(b.delay) * math.Pow(2, float64(attempt))
	if b.max > 0 && backoff > float64(b.max) {
		backoff = float64(b.max)
	}
	return time.Duration(backoff)
}

// DefaultMaxBackoff caps a single wait regardless of policy.
const DefaultMaxBackoff = 60 * time.Second

// FromPolicy builds a Backoff from a server's retry policy.
func FromPolicy(policy config.RetryPolicy) Backoff {
	delay := policy.Delay.Duration()
	if delay <= 0 {
		delay = time.Second
	}

	switch policy.Backoff {
	case config.BackoffExponential:
		return NewExponentialBackoff(delay, DefaultMaxBackoff)
	default:
		return NewLinearBackoff(delay, DefaultMaxBackoff)
	}
}

// Schedule returns the full wait schedule for a policy, one entry per
// retry attempt after the initial try.
func Schedule(policy config.RetryPolicy) []time.Duration {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := FromPolicy(policy)
	waits := make([]time.Duration, 0, attempts-1)
	for i := 0; i < attempts-1; i++ {
		waits = append(waits, backoff.Next(i))
	}
	return waits
}
