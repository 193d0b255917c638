package bot

import (
	"math/rand/v2"
	"time"
)

// backoff doubles its delay after every session end, adds up to 10% jitter
// and clamps to max. A welcome resets it to min.
type backoff struct {
	min, max time.Duration
	current  time.Duration
	// jitter returns a value in [0, n).
	jitter func(n int64) int64
}

func newBackoff(minDelay, maxDelay time.Duration) *backoff {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &backoff{min: minDelay, max: maxDelay, current: minDelay, jitter: rand.Int64N}
}

// Delay returns the sleep before the next attempt.
func (b *backoff) Delay() time.Duration { return b.current }

// Reset returns to the minimum delay.
func (b *backoff) Reset() { b.current = b.min }

// Advance computes the delay for the attempt after next.
func (b *backoff) Advance() {
	next := b.current * 2
	if next <= 0 || next > b.max {
		next = b.max
	}
	if tenth := int64(next / 10); tenth > 0 {
		next += time.Duration(b.jitter(tenth + 1))
	}
	if next > b.max {
		next = b.max
	}
	b.current = next
}
