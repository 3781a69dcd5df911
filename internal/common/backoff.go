package common

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays with jitter
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // Fraction of the delay added or removed at random, 0.25 means ±25%
}

// NewBackoff creates a backoff with ±25% jitter
func NewBackoff(initial, max time.Duration, multiplier float64) Backoff {
	return Backoff{Initial: initial, Max: max, Multiplier: multiplier, Jitter: 0.25}
}

// Delay returns the wait before retry number attempt (1 for the first retry).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(b.Initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay += delay * b.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = float64(b.Initial)
	}

	return time.Duration(delay)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
