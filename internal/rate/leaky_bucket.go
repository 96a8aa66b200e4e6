// Package rate provides the pacing primitive used by rate-based runners.
package rate

import (
	"context"
	"sync"
	"time"
)

// LeakyBucket schedules iteration starts at a fixed rate.
//
// Instead of tracking available tokens it tracks when the next iteration
// should begin: a virtual drip time advances at the configured rate, and
// Next returns the start time of the next iteration. Behind-schedule
// callers get a time in the past and should start immediately, which
// naturally absorbs backpressure without bursting.
//
// Safe for concurrent use.
type LeakyBucket struct {
	mu          sync.Mutex
	rate        float64 // iterations per second
	lastDrip    time.Time
	accumulated float64
}

// NewLeakyBucket returns a bucket pacing at rate iterations per second.
// Rates <= 0 are clamped to 1. The first call to Next returns immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:     rate,
		lastDrip: time.Now(),
	}
}

// Next returns when the next iteration should start. The returned time may
// be in the past when the caller is behind schedule.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate
	// Strict pacing: never accumulate more than one pending iteration.
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		return now
	}

	deficit := 1.0 - lb.accumulated
	lb.accumulated = 0
	next := now.Add(time.Duration(deficit / lb.rate * float64(time.Second)))
	// Advance the drip to the scheduled start so the wake-up is not
	// counted as elapsed time again.
	lb.lastDrip = next
	return next
}

// Wait blocks until the next iteration should start or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Next())
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

// Rate returns the configured rate in iterations per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}
