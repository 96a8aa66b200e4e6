package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/rate"
)

// RPS paces iteration starts at a target rate (open model) while keeping
// the number of in-flight iterations bounded. A dispatcher goroutine
// waits on the leaky bucket, claims an in-flight slot, and hands the
// iteration to a fresh goroutine so slow iterations never stall the
// pacing of their siblings.
type RPS struct {
	spec bench.RunnerSpec

	startedAt time.Time
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	inflight  atomic.Int32
}

// Type implements Runner.
func (r *RPS) Type() bench.RunnerType { return bench.RunnerRPS }

// Init implements Runner.
func (r *RPS) Init(spec bench.RunnerSpec) error {
	if spec.Type != bench.RunnerRPS {
		return fmt.Errorf("invalid spec type: expected %s, got %s", bench.RunnerRPS, spec.Type)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	r.spec = spec
	return nil
}

func (r *RPS) maxInFlight() int {
	if r.spec.MaxInFlight > 0 {
		return r.spec.MaxInFlight
	}
	if r.spec.Concurrency > 0 {
		return r.spec.Concurrency
	}
	return 1
}

// Run implements Runner.
func (r *RPS) Run(ctx context.Context, inv *invoker.Invoker, body invoker.Scenario, args map[string]any) ([]bench.IterationResult, error) {
	r.startedAt = time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.spec.Timeout)
		defer cancel()
	}

	var deadline time.Time
	if r.spec.Duration > 0 {
		deadline = r.startedAt.Add(r.spec.Duration)
	}
	total := int64(r.spec.Times)

	bucket := rate.NewLeakyBucket(r.spec.Rate)
	slots := make(chan struct{}, r.maxInFlight())
	coll := &collector{}

	var wg sync.WaitGroup
dispatch:
	for {
		if total > 0 && r.started.Load() >= total {
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			break
		}

		if err := bucket.Wait(runCtx); err != nil {
			if total == 0 || r.started.Load() < total {
				coll.abort(classifyFatal(err))
			}
			break
		}

		// Claim an in-flight slot; backpressure delays the start but the
		// bucket keeps the long-run rate on target.
		select {
		case slots <- struct{}{}:
		case <-runCtx.Done():
			coll.abort(classifyFatal(runCtx.Err()))
			break dispatch
		}

		r.started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			r.inflight.Add(1)
			defer r.inflight.Add(-1)

			res, fatal := inv.Invoke(runCtx, body, args)
			if fatal != nil {
				coll.abort(classifyFatal(fatal))
				return
			}
			coll.add(res)
			r.completed.Add(1)
			if res.Failed() {
				r.failed.Add(1)
			}
		}()

		if coll.aborted.Load() {
			break
		}
	}
	wg.Wait()

	log.WithFields(log.Fields{
		"runner":    r.Type(),
		"rate":      r.spec.Rate,
		"completed": r.completed.Load(),
		"failed":    r.failed.Load(),
		"elapsed":   time.Since(r.startedAt),
	}).Info("run finished")
	return coll.finish()
}

// Progress implements Runner.
func (r *RPS) Progress() float64 {
	switch {
	case r.spec.Times > 0:
		p := float64(r.completed.Load()) / float64(r.spec.Times)
		if p > 1 {
			p = 1
		}
		return p
	case r.spec.Duration > 0 && !r.startedAt.IsZero():
		p := float64(time.Since(r.startedAt)) / float64(r.spec.Duration)
		if p > 1 {
			p = 1
		}
		return p
	default:
		return 0
	}
}

// Stats implements Runner.
func (r *RPS) Stats() *Stats {
	var elapsed time.Duration
	if !r.startedAt.IsZero() {
		elapsed = time.Since(r.startedAt)
	}
	return &Stats{
		StartedAt:     r.startedAt,
		Elapsed:       elapsed,
		Completed:     r.completed.Load(),
		Failed:        r.failed.Load(),
		ActiveWorkers: int(r.inflight.Load()),
	}
}

var _ Runner = (*RPS)(nil)
