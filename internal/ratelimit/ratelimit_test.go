package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBucket_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewBucket(clk, 5, 5)

	for i := 0; i < 5; i++ {
		if !b.Allow() {
			t.Fatalf("expected burst token %d", i)
		}
	}
	if b.Allow() {
		t.Fatalf("expected empty bucket")
	}

	clk.Advance(200 * time.Millisecond) // 1 token at 5/sec
	if !b.Allow() {
		t.Fatalf("expected refill after advance")
	}
	if b.Allow() {
		t.Fatalf("expected only a single refilled token")
	}
}

func TestBucket_CarriesFractionalRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewBucket(clk, 10, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}

	// Two 50ms steps are together worth one token at 10/sec; neither step is
	// alone. The remainder must carry across refills.
	clk.Advance(50 * time.Millisecond)
	if b.Allow() {
		t.Fatalf("expected no token after half an interval")
	}
	clk.Advance(50 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("expected carried remainder to complete a token")
	}
}

func TestBucket_ClampsToBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(time.Hour)
	if !b.Allow() {
		t.Fatalf("expected refill up to burst")
	}
	if b.Allow() {
		t.Fatalf("expected burst clamp")
	}
}

func TestBucket_BackwardsClockDoesNotRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(-time.Minute)
	if b.Allow() {
		t.Fatalf("expected no refill when time goes backwards")
	}
}

func TestBucket_ZeroRateAlwaysAllows(t *testing.T) {
	b := NewBucket(nil, 0, 0)
	for i := 0; i < 100; i++ {
		if !b.Allow() {
			t.Fatalf("unlimited bucket refused at %d", i)
		}
	}
}
