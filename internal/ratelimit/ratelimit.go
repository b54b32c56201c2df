// Package ratelimit provides a small deterministic token bucket used to cap
// per-connection signaling message rates.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so tests can drive refill deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Bucket is a token bucket holding up to burst tokens, refilled at rate
// tokens per second. Refill uses integer nanosecond accounting with a carry,
// so no tokens are lost to rounding between calls.
type Bucket struct {
	mu sync.Mutex

	clock Clock
	rate  int64 // tokens/sec
	burst int64

	available int64
	// carry accumulates elapsed time scaled by rate ("token-nanos"); one token
	// is worth 1e9 carry units. Keeping the remainder exact means no tokens
	// are lost to rounding between calls.
	carry int64
	last  time.Time
}

// NewBucket returns a full bucket. A non-positive rate or burst yields a
// bucket that always allows, which is how "no limit configured" is expressed.
func NewBucket(clock Clock, rate, burst int64) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	return &Bucket{
		clock:     clock,
		rate:      rate,
		burst:     burst,
		available: burst,
		last:      clock.Now(),
	}
}

// Allow consumes one token, reporting whether one was available.
func (b *Bucket) Allow() bool {
	if b.rate <= 0 || b.burst <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now()
	if !now.After(b.last) {
		// Clock went backwards or did not move; re-anchor without refilling.
		b.last = now
		return
	}

	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	// Enough idle time to fill the bucket outright; skip the multiply so a
	// long sleep cannot overflow elapsed*rate.
	need := b.burst - b.available
	if elapsed >= need*int64(time.Second)/b.rate+int64(time.Second) {
		b.available = b.burst
		b.carry = 0
		return
	}

	b.carry += elapsed * b.rate
	b.available += b.carry / int64(time.Second)
	b.carry %= int64(time.Second)
	if b.available > b.burst {
		b.available = b.burst
		b.carry = 0
	}
}
