package admission

import (
	"sync"
	"testing"
	"time"
)

// fixedClock lets tests control refill without sleeping.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*RateLimiter, *fixedClock) {
	clock := &fixedClock{now: time.Unix(1700000000, 0)}
	rl := NewRateLimiter(10, 2)
	rl.now = clock.Now
	return rl, clock
}

func TestBurstThenReject(t *testing.T) {
	rl, _ := newTestLimiter()

	// 11 back-to-back requests: first 10 admitted, 11th rejected.
	for i := 1; i <= 10; i++ {
		if !rl.Admit("1.2.3.4") {
			t.Fatalf("request %d should have been admitted", i)
		}
	}
	if rl.Admit("1.2.3.4") {
		t.Fatal("request 11 should have been rejected")
	}
}

func TestRefillOverTime(t *testing.T) {
	rl, clock := newTestLimiter()

	for i := 0; i < 10; i++ {
		rl.Admit("client")
	}
	if rl.Admit("client") {
		t.Fatal("bucket should be empty")
	}

	// 2 tokens/s: after one second exactly two more requests pass.
	clock.Advance(time.Second)
	if !rl.Admit("client") {
		t.Fatal("first refilled token should admit")
	}
	if !rl.Admit("client") {
		t.Fatal("second refilled token should admit")
	}
	if rl.Admit("client") {
		t.Fatal("third request should be rejected, only 2 tokens refilled")
	}
}

func TestTokensCappedAtCapacity(t *testing.T) {
	rl, clock := newTestLimiter()

	rl.Admit("client")
	// A long idle period must not bank more than capacity tokens.
	clock.Advance(time.Hour)

	admitted := 0
	for i := 0; i < 20; i++ {
		if rl.Admit("client") {
			admitted++
		}
	}
	if admitted != 10 {
		t.Fatalf("expected exactly 10 admissions after long idle, got %d", admitted)
	}
}

func TestClientsIsolated(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < 10; i++ {
		rl.Admit("a")
	}
	if rl.Admit("a") {
		t.Fatal("client a should be exhausted")
	}
	if !rl.Admit("b") {
		t.Fatal("client b must start at full capacity")
	}
}

func TestAdmitConcurrentNeverOveradmits(t *testing.T) {
	rl, _ := newTestLimiter()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Admit("shared") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("expected exactly 10 concurrent admissions, got %d", admitted)
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	rl, clock := newTestLimiter()

	rl.Admit("old")
	clock.Advance(20 * time.Minute)
	rl.Admit("fresh")

	if evicted := rl.Sweep(10 * time.Minute); evicted != 1 {
		t.Fatalf("expected 1 evicted bucket, got %d", evicted)
	}
	if rl.Tracked() != 1 {
		t.Fatalf("expected 1 tracked bucket, got %d", rl.Tracked())
	}

	// An evicted client starts over at full capacity.
	for i := 0; i < 10; i++ {
		if !rl.Admit("old") {
			t.Fatalf("request %d after eviction should be admitted", i+1)
		}
	}
}
