package contexts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

func poolHandle(policy bench.IdentityPolicy, n int) *Handle {
	h := newHandle(bench.ContextSpec{IdentityPolicy: policy})
	identities := make([]provision.Identity, n)
	for i := range identities {
		identities[i] = provision.Identity{
			Tenant: provision.Tenant{ID: "t", Name: "t"},
			User:   provision.User{ID: string(rune('a' + i)), Name: string(rune('a' + i))},
		}
	}
	h.fillPool(identities)
	return h
}

func TestAcquireReleaseRoundRobin(t *testing.T) {
	h := poolHandle(bench.PolicyRoundRobin, 3)
	ctx := context.Background()

	first, err := h.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.User.ID == second.User.ID {
		t.Error("two concurrent holders must not share an identity")
	}

	// Releasing appends to the back: the released identity is drawn last.
	h.Release(first)
	third, _ := h.Acquire(ctx)
	if third.User.ID == first.User.ID {
		t.Error("round-robin should prefer the identity that has been idle longest")
	}
}

func TestAcquireBlocksWhenPoolExhausted(t *testing.T) {
	h := poolHandle(bench.PolicyRoundRobin, 1)
	ctx := context.Background()

	ident, err := h.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan provision.Identity)
	go func() {
		got, err := h.Acquire(ctx)
		if err != nil {
			t.Error(err)
		}
		acquired <- got
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while the pool was empty")
	case <-time.After(50 * time.Millisecond):
	}

	h.Release(ident)
	select {
	case got := <-acquired:
		if got.User.ID != ident.User.ID {
			t.Errorf("expected the released identity, got %s", got.User.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not wake after Release")
	}
}

func TestAcquireHonoursCancellation(t *testing.T) {
	h := poolHandle(bench.PolicyRoundRobin, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := h.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.Acquire(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}

func TestMarkGoneWakesAllWaiters(t *testing.T) {
	h := poolHandle(bench.PolicyRoundRobin, 1)
	ctx := context.Background()

	if _, err := h.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	const waiters = 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Acquire(ctx)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	h.MarkGone()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters did not wake after MarkGone")
	}

	close(errs)
	for err := range errs {
		if err != bench.ErrContextGone {
			t.Errorf("waiter error = %v, want ErrContextGone", err)
		}
	}
}

func TestReleaseAfterMarkGoneDoesNotBlock(t *testing.T) {
	h := poolHandle(bench.PolicyRoundRobin, 1)

	ident, err := h.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h.MarkGone()

	// The worker holding the last identity returns it after the pool has
	// died; that hand-back must complete, or the runner's WaitGroup never
	// drains and the whole run freezes instead of aborting.
	released := make(chan struct{})
	go func() {
		h.Release(ident)
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("Release blocked on a gone pool")
	}

	if _, err := h.Acquire(context.Background()); err != bench.ErrContextGone {
		t.Errorf("Acquire after gone = %v, want ErrContextGone", err)
	}
}

func TestRandomPolicyDrawsFromWholePool(t *testing.T) {
	h := poolHandle(bench.PolicyRandom, 8)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ident, err := h.Acquire(ctx)
		if err != nil {
			t.Fatal(err)
		}
		seen[ident.User.ID] = true
		h.Release(ident)
	}
	// 200 draws over 8 identities: seeing only one would mean the policy
	// is not random at all.
	if len(seen) < 2 {
		t.Errorf("random draw touched %d identities", len(seen))
	}
}
