package outbox

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy decides when a failed entry becomes due again.
type BackoffStrategy interface {
	// NextAttempt returns the time of the given attempt, counted from 1.
	NextAttempt(attempt int) time.Time
}

// ExponentialBackoff delays each retry by base * 2^(attempt-1), capped at
// max, plus a random jitter in [0, jitterMax].
type ExponentialBackoff struct {
	base      time.Duration
	max       time.Duration
	jitterMax time.Duration
}

// NewExponentialBackoff creates an exponential backoff strategy.
func NewExponentialBackoff(base, max, jitterMax time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		base:      base,
		max:       max,
		jitterMax: jitterMax,
	}
}

// DefaultBackoffStrategy returns the backoff used when none is configured.
func DefaultBackoffStrategy() BackoffStrategy {
	return NewExponentialBackoff(defaultBaseDelay, defaultMaxDelay, defaultJitterMax)
}

func (b *ExponentialBackoff) NextAttempt(attempt int) time.Time {
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(b.base) * math.Pow(2, float64(attempt-1)))
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	if b.jitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(b.jitterMax) + 1))
	}
	return time.Now().UTC().Add(delay)
}
