package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/invoker"
)

// Serial runs all iterations sequentially in a single worker. Useful for
// baseline measurements without concurrency effects.
type Serial struct {
	spec bench.RunnerSpec

	startedAt time.Time
	completed atomic.Int64
	failed    atomic.Int64
}

// Type implements Runner.
func (r *Serial) Type() bench.RunnerType { return bench.RunnerSerial }

// Init implements Runner.
func (r *Serial) Init(spec bench.RunnerSpec) error {
	if spec.Type != bench.RunnerSerial {
		return fmt.Errorf("invalid spec type: expected %s, got %s", bench.RunnerSerial, spec.Type)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	r.spec = spec
	return nil
}

// Run implements Runner.
func (r *Serial) Run(ctx context.Context, inv *invoker.Invoker, body invoker.Scenario, args map[string]any) ([]bench.IterationResult, error) {
	r.startedAt = time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.spec.Timeout)
		defer cancel()
	}

	coll := &collector{}
	for i := 0; i < r.spec.Times; i++ {
		if runCtx.Err() != nil {
			coll.abort(classifyFatal(runCtx.Err()))
			break
		}

		res, fatal := inv.Invoke(runCtx, body, args)
		if fatal != nil {
			coll.abort(classifyFatal(fatal))
			break
		}
		coll.add(res)
		r.completed.Add(1)
		if res.Failed() {
			r.failed.Add(1)
		}
	}
	return coll.finish()
}

// Progress implements Runner.
func (r *Serial) Progress() float64 {
	if r.spec.Times == 0 {
		return 0
	}
	p := float64(r.completed.Load()) / float64(r.spec.Times)
	if p > 1 {
		p = 1
	}
	return p
}

// Stats implements Runner.
func (r *Serial) Stats() *Stats {
	var elapsed time.Duration
	if !r.startedAt.IsZero() {
		elapsed = time.Since(r.startedAt)
	}
	active := 0
	if r.completed.Load() < int64(r.spec.Times) && !r.startedAt.IsZero() {
		active = 1
	}
	return &Stats{
		StartedAt:     r.startedAt,
		Elapsed:       elapsed,
		Completed:     r.completed.Load(),
		Failed:        r.failed.Load(),
		ActiveWorkers: active,
	}
}

var _ Runner = (*Serial)(nil)
