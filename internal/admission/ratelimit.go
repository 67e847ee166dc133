package admission

import (
	"sync"
	"time"
)

const (
	// DefaultRateCapacity is the bucket size: a fresh client may burst
	// this many requests before refill matters.
	DefaultRateCapacity = 10.0
	// DefaultRefillPerSec is the sustained admission rate per client.
	DefaultRefillPerSec = 2.0
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter is a per-client token bucket. One coarse lock guards the
// whole bucket map; every admission decision is atomic with respect to
// all others.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64
	now      func() time.Time
}

func NewRateLimiter(capacity, refillPerSec float64) *RateLimiter {
	if capacity <= 0 {
		capacity = DefaultRateCapacity
	}
	if refillPerSec <= 0 {
		refillPerSec = DefaultRefillPerSec
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		refill:   refillPerSec,
		now:      time.Now,
	}
}

// Admit charges one token against clientID's bucket and reports whether
// the request may proceed. A client never seen before starts at full
// capacity, so its first burst of up to capacity requests is admitted.
func (rl *RateLimiter) Admit(clientID string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[clientID]
	if !ok {
		b = &bucket{tokens: rl.capacity, lastRefill: now}
		rl.buckets[clientID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(rl.capacity, b.tokens+elapsed*rl.refill)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Sweep drops buckets that saw no traffic for at least idleFor, bounding
// map growth under sustained unique-client traffic. Returns the number of
// evicted buckets.
func (rl *RateLimiter) Sweep(idleFor time.Duration) int {
	cutoff := rl.now().Add(-idleFor)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for id, b := range rl.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, id)
			evicted++
		}
	}
	return evicted
}

// Tracked returns the number of client buckets currently held.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
