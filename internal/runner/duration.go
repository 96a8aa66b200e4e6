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
)

// ConstantForDuration is the constant worker pool with a wall-clock
// stopping condition: workers keep starting iterations until the deadline
// passes, then let in-flight iterations finish. Reaching the deadline is
// the planned outcome, not an abort.
type ConstantForDuration struct {
	spec bench.RunnerSpec

	startedAt time.Time
	deadline  time.Time
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
}

// Type implements Runner.
func (r *ConstantForDuration) Type() bench.RunnerType { return bench.RunnerConstantForDuration }

// Init implements Runner.
func (r *ConstantForDuration) Init(spec bench.RunnerSpec) error {
	if spec.Type != bench.RunnerConstantForDuration {
		return fmt.Errorf("invalid spec type: expected %s, got %s", bench.RunnerConstantForDuration, spec.Type)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	r.spec = spec
	return nil
}

// Run implements Runner.
func (r *ConstantForDuration) Run(ctx context.Context, inv *invoker.Invoker, body invoker.Scenario, args map[string]any) ([]bench.IterationResult, error) {
	r.startedAt = time.Now()
	r.deadline = r.startedAt.Add(r.spec.Duration)

	runCtx := ctx
	var cancel context.CancelFunc
	if r.spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.spec.Timeout)
		defer cancel()
	}

	coll := &collector{}

	var wg sync.WaitGroup
	for w := 0; w < r.spec.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.active.Add(1)
			defer r.active.Add(-1)

			for {
				if runCtx.Err() != nil {
					coll.abort(classifyFatal(runCtx.Err()))
					return
				}
				// The deadline gates iteration starts only; an iteration
				// already running is allowed to finish.
				if !time.Now().Before(r.deadline) {
					return
				}

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
			}
		}()
	}
	wg.Wait()

	log.WithFields(log.Fields{
		"runner":    r.Type(),
		"completed": r.completed.Load(),
		"failed":    r.failed.Load(),
		"elapsed":   time.Since(r.startedAt),
	}).Info("run finished")
	return coll.finish()
}

// Progress implements Runner.
func (r *ConstantForDuration) Progress() float64 {
	if r.startedAt.IsZero() || r.spec.Duration <= 0 {
		return 0
	}
	p := float64(time.Since(r.startedAt)) / float64(r.spec.Duration)
	if p > 1 {
		p = 1
	}
	return p
}

// Stats implements Runner.
func (r *ConstantForDuration) Stats() *Stats {
	var elapsed time.Duration
	if !r.startedAt.IsZero() {
		elapsed = time.Since(r.startedAt)
	}
	return &Stats{
		StartedAt:     r.startedAt,
		Elapsed:       elapsed,
		Completed:     r.completed.Load(),
		Failed:        r.failed.Load(),
		ActiveWorkers: int(r.active.Load()),
	}
}

var _ Runner = (*ConstantForDuration)(nil)
