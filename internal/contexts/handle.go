// Package contexts allocates and tears down the isolated set of tenants,
// users, quotas and pre-created resources a scenario run operates within.
package contexts

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

// Handle exposes one context's allocated identities and pre-created
// resources to scenario invocations. The identity pool is claim/release:
// each worker holds one identity for the duration of an iteration and
// returns it afterwards. Everything else on the handle is read-only to
// workers.
type Handle struct {
	spec   bench.ContextSpec
	random bool

	mu    sync.Mutex
	avail []provision.Identity
	slots chan struct{}

	identities []provision.Identity

	// Precreated resources by precondition kind, e.g. "volume", "server".
	precreated map[string][]provision.Resource

	// Bookkeeping for teardown. Only resources the manager created are
	// listed here; reused identities never are.
	createdTenants   []provision.Tenant
	createdUsers     []provision.User
	createdResources []provision.Resource

	// done is closed by MarkGone; Acquire and Release select on it so
	// neither can block on a dead pool.
	done         chan struct{}
	gone         atomic.Bool
	teardownOnce sync.Once
}

func newHandle(spec bench.ContextSpec) *Handle {
	return &Handle{
		spec:       spec,
		random:     spec.IdentityPolicy == bench.PolicyRandom,
		precreated: make(map[string][]provision.Resource),
		done:       make(chan struct{}),
	}
}

// fillPool publishes the identity pool. Called once at the end of setup.
func (h *Handle) fillPool(identities []provision.Identity) {
	h.identities = identities
	h.avail = append([]provision.Identity(nil), identities...)
	h.slots = make(chan struct{}, len(identities))
	for range identities {
		h.slots <- struct{}{}
	}
}

// Acquire claims one identity per the configured policy. It blocks until
// an identity is free, the context is cancelled, or the handle is gone.
func (h *Handle) Acquire(ctx context.Context) (provision.Identity, error) {
	if h.gone.Load() {
		return provision.Identity{}, bench.ErrContextGone
	}

	select {
	case <-ctx.Done():
		return provision.Identity{}, ctx.Err()
	case <-h.done:
		return provision.Identity{}, bench.ErrContextGone
	case <-h.slots:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone.Load() {
		// Lost the race with MarkGone; the consumed slot does not need
		// to go back, every other waiter wakes on done.
		return provision.Identity{}, bench.ErrContextGone
	}

	idx := 0
	if h.random {
		idx = rand.Intn(len(h.avail))
	}
	ident := h.avail[idx]
	h.avail = append(h.avail[:idx], h.avail[idx+1:]...)
	return ident, nil
}

// Release returns a claimed identity to the pool. Releasing into a gone
// pool is a no-op rather than a blocked send.
func (h *Handle) Release(ident provision.Identity) {
	h.mu.Lock()
	h.avail = append(h.avail, ident)
	h.mu.Unlock()
	select {
	case h.slots <- struct{}{}:
	case <-h.done:
	}
}

// Identities returns all identities in the pool, in allocation order.
func (h *Handle) Identities() []provision.Identity {
	return h.identities
}

// Precreated returns the resources a precondition of the given kind
// created during setup.
func (h *Handle) Precreated(kind string) []provision.Resource {
	return h.precreated[kind]
}

// MarkGone flags the context as unusable. Pending and future Acquire
// calls fail with bench.ErrContextGone, which runners treat as an
// unrecoverable condition.
func (h *Handle) MarkGone() {
	if h.gone.CompareAndSwap(false, true) {
		close(h.done)
	}
}

// Gone reports whether the context has been marked unusable.
func (h *Handle) Gone() bool {
	return h.gone.Load()
}
