package bot

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitter(int64) int64 { return 0 }

func TestBackoffDoublesAndClamps(t *testing.T) {
	b := newBackoff(15*time.Second, 100*time.Second)
	b.jitter = noJitter

	var got []time.Duration
	for range 5 {
		got = append(got, b.Delay())
		b.Advance()
	}
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second, 100 * time.Second, 100 * time.Second}, got)

	b.Reset()
	assert.Equal(t, 15*time.Second, b.Delay())
}

func TestBackoffJitterIsBounded(t *testing.T) {
	b := newBackoff(10*time.Second, time.Hour)
	b.jitter = func(n int64) int64 { return n - 1 }

	b.Advance()
	assert.Equal(t, 22*time.Second, b.Delay(), "jitter adds at most a tenth of the doubled delay")
}

func TestBackoffSequenceProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 100 {
		minDelay := time.Duration(1+rng.IntN(30)) * time.Second
		maxDelay := minDelay + time.Duration(rng.IntN(600))*time.Second
		b := newBackoff(minDelay, maxDelay)
		b.jitter = func(n int64) int64 { return rng.Int64N(n) }

		prev := b.Delay()
		require.Equal(t, minDelay, prev)
		for range 20 {
			b.Advance()
			cur := b.Delay()
			require.GreaterOrEqual(t, cur, prev)
			require.LessOrEqual(t, cur, maxDelay)
			prev = cur
		}

		b.Reset()
		require.Equal(t, minDelay, b.Delay())
	}
}

func TestBackoffMaxBelowMin(t *testing.T) {
	b := newBackoff(time.Minute, time.Second)
	b.Advance()
	assert.Equal(t, time.Minute, b.Delay())
}
