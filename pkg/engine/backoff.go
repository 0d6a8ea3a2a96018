package engine

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	baseDelay = time.Second
	maxDelay  = 10 * time.Second
	maxJitter = 500 * time.Millisecond
)

// backoffDelay computes the pause after a failed attempt: exponential from
// baseDelay plus jitter, capped at maxDelay.
func backoffDelay(attempt int, jitter func() time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 1 << 10 seconds already exceeds the cap; avoid shifting past it.
	if attempt > 10 {
		return maxDelay
	}

	delay := baseDelay << (attempt - 1)
	if delay >= maxDelay {
		return maxDelay
	}

	delay += jitter()
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// defaultJitter draws uniformly from [0, maxJitter).
func defaultJitter() time.Duration {
	return rand.N(maxJitter)
}

// sleepContext pauses for the given duration unless the context ends first.
func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
