package outbox

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays with exponential growth and jitter.
// The attempt count lives on the event row, so Backoff itself is stateless.
type Backoff struct {
	Initial    time.Duration // Initial delay (default: 1s)
	Max        time.Duration // Maximum delay (default: 5m)
	Multiplier float64       // Multiplier per attempt (default: 2.0)
	Jitter     float64       // Jitter factor 0-1 (default: 0.1 = 10%)
}

// DefaultBackoff returns the relay's default retry schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    1 * time.Second,
		Max:        5 * time.Minute,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Delay returns the wait before retrying after the given number of failed
// attempts. attempt 1 yields roughly Initial.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = float64(b.Initial)
	}
	return time.Duration(delay)
}
