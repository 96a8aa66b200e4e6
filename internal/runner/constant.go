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

// Constant launches a fixed number of workers that share a total
// iteration budget: each worker repeatedly claims the next iteration
// number from an atomic counter until Times iterations have been started.
// Workers are independent; they never block on each other.
type Constant struct {
	spec bench.RunnerSpec

	startedAt time.Time
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
}

// Type implements Runner.
func (r *Constant) Type() bench.RunnerType { return bench.RunnerConstant }

// Init implements Runner.
func (r *Constant) Init(spec bench.RunnerSpec) error {
	if spec.Type != bench.RunnerConstant {
		return fmt.Errorf("invalid spec type: expected %s, got %s", bench.RunnerConstant, spec.Type)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	r.spec = spec
	return nil
}

// Run implements Runner.
func (r *Constant) Run(ctx context.Context, inv *invoker.Invoker, body invoker.Scenario, args map[string]any) ([]bench.IterationResult, error) {
	r.startedAt = time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.spec.Timeout)
		defer cancel()
	}

	coll := &collector{}
	total := int64(r.spec.Times)

	var wg sync.WaitGroup
	for w := 0; w < r.spec.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.active.Add(1)
			defer r.active.Add(-1)

			for {
				if runCtx.Err() != nil {
					if r.started.Load() < total {
						coll.abort(classifyFatal(runCtx.Err()))
					}
					return
				}
				if r.started.Add(1) > total {
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
func (r *Constant) Progress() float64 {
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
func (r *Constant) Stats() *Stats {
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

var _ Runner = (*Constant)(nil)
