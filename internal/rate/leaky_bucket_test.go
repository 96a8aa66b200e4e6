package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewLeakyBucket(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected float64
	}{
		{"positive rate", 100.0, 100.0},
		{"zero rate defaults to 1", 0.0, 1.0},
		{"negative rate defaults to 1", -10.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := NewLeakyBucket(tt.rate)
			if lb.Rate() != tt.expected {
				t.Errorf("Rate() = %v, want %v", lb.Rate(), tt.expected)
			}
		})
	}
}

func TestLeakyBucketFirstNextIsImmediate(t *testing.T) {
	lb := NewLeakyBucket(100.0)

	now := time.Now()
	next := lb.Next()

	if diff := next.Sub(now); diff > 10*time.Millisecond {
		t.Errorf("first Next() should be immediate, got delay of %v", diff)
	}
}

func TestLeakyBucketPacesAtRate(t *testing.T) {
	rate := 100.0 // 10ms apart
	lb := NewLeakyBucket(rate)

	_ = lb.Next()

	next := lb.Next()
	expectedDelay := time.Duration(float64(time.Second) / rate)
	actualDelay := next.Sub(time.Now())

	if actualDelay < expectedDelay-5*time.Millisecond || actualDelay > expectedDelay+5*time.Millisecond {
		t.Errorf("delay between starts = %v, want ~%v", actualDelay, expectedDelay)
	}
}

func TestLeakyBucketNoBurstAfterIdle(t *testing.T) {
	lb := NewLeakyBucket(1000.0)

	_ = lb.Next()
	// Idle long enough to accumulate many virtual drips.
	time.Sleep(20 * time.Millisecond)

	// Strict pacing: at most one pending iteration, so the second call
	// right after an immediate one must already be scheduled ahead.
	first := lb.Next()
	second := lb.Next()
	if !second.After(first) {
		t.Errorf("idle time must not buy a burst: first=%v second=%v", first, second)
	}
}

func TestLeakyBucketWaitRespectsContext(t *testing.T) {
	lb := NewLeakyBucket(1.0)

	_ = lb.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("Wait() blocked for %v after cancellation", elapsed)
	}
}

func TestLeakyBucketConcurrentCallers(t *testing.T) {
	lb := NewLeakyBucket(10000.0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = lb.Next()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Next() calls deadlocked")
	}
}
