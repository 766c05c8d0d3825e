package dispatch

import (
	rand "math/rand/v2"
	"time"
)

// backoff computes bounded exponential retry delays with optional jitter.
//
// The nth retry waits min(max, initial * multiplier^(n-1)), reduced by up to
// jitter*delay so concurrent dispatchers do not retry in lockstep.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	rng        *rand.Rand
}

// delay returns the wait before retry number n (1-based).
func (b backoff) delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	initial := b.initial
	if initial <= 0 {
		initial = 50 * time.Millisecond
	}
	mult := b.multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	d := float64(initial)
	for i := 1; i < n; i++ {
		d *= mult
		if b.max > 0 && d >= float64(b.max) {
			d = float64(b.max)
			break
		}
	}
	if b.max > 0 && d > float64(b.max) {
		d = float64(b.max)
	}

	if b.jitter > 0 {
		j := min(b.jitter, 1.0)
		var r float64
		if b.rng != nil {
			r = b.rng.Float64()
		} else {
			r = rand.Float64() //nolint:gosec // non-crypto backoff jitter
		}
		d -= d * j * r
	}

	return time.Duration(d)
}

// newRetryRNG returns a deterministic RNG only when a non-zero seed is provided.
// When seed == 0 it returns nil so callers use the package-level PRNG.
//
//nolint:gosec
func newRetryRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}
