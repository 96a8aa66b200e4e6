// Package runner provides the concurrency/timing strategies that drive
// repeated scenario invocations: constant worker pools, serial loops,
// deadline-bound pools and rate-paced starts. The runner is the sole
// source of intra-scenario parallelism.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/invoker"
)

// Runner executes iterations of a scenario body under one strategy.
//
// An individual iteration's failure never stops a run. A runner stops
// early only on an unrecoverable condition — the context being gone, or
// run-level cancellation — and then returns the partial result sequence
// together with *bench.RunnerAbortedError rather than silently
// truncating.
type Runner interface {
	// Type returns the strategy this runner implements.
	Type() bench.RunnerType

	// Init validates and stores the spec. Called once before Run.
	Init(spec bench.RunnerSpec) error

	// Run drives the scenario and blocks until completion or abort.
	// Results are ordered by completion, not by start.
	Run(ctx context.Context, inv *invoker.Invoker, body invoker.Scenario, args map[string]any) ([]bench.IterationResult, error)

	// Progress returns completion progress in [0.0, 1.0].
	Progress() float64

	// Stats returns a snapshot of the run's counters.
	Stats() *Stats
}

// Stats is a point-in-time view of a run.
type Stats struct {
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed"`
	Completed     int64         `json:"completed"`
	Failed        int64         `json:"failed"`
	ActiveWorkers int           `json:"active_workers"`
}

// New creates an uninitialized runner for the given strategy.
func New(t bench.RunnerType) (Runner, error) {
	switch t {
	case bench.RunnerConstant:
		return &Constant{}, nil
	case bench.RunnerSerial:
		return &Serial{}, nil
	case bench.RunnerConstantForDuration:
		return &ConstantForDuration{}, nil
	case bench.RunnerRPS:
		return &RPS{}, nil
	default:
		return nil, fmt.Errorf("unknown runner type: %s", t)
	}
}

// NewForSpec creates and initializes a runner from a spec.
func NewForSpec(spec bench.RunnerSpec) (Runner, error) {
	r, err := New(spec.Type)
	if err != nil {
		return nil, err
	}
	if err := r.Init(spec); err != nil {
		return nil, err
	}
	return r, nil
}

// collector gathers results in completion order and records the first
// abort condition observed by any worker.
type collector struct {
	mu      sync.Mutex
	results []bench.IterationResult

	abortOnce sync.Once
	aborted   atomic.Bool
	abortErr  error
}

func (c *collector) add(res bench.IterationResult) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
}

func (c *collector) abort(err error) {
	c.abortOnce.Do(func() {
		c.abortErr = err
		c.aborted.Store(true)
	})
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// finish returns the collected sequence and, when the run was aborted,
// the terminal error marker carrying the partial count.
func (c *collector) finish() ([]bench.IterationResult, error) {
	c.mu.Lock()
	results := c.results
	c.mu.Unlock()

	if !c.aborted.Load() {
		return results, nil
	}
	reason := "unrecoverable condition"
	if c.abortErr != nil {
		reason = c.abortErr.Error()
	}
	return results, &bench.RunnerAbortedError{
		Reason:    reason,
		Completed: len(results),
		Err:       c.abortErr,
	}
}

// classifyFatal maps an invoker fatal error to the abort it represents.
// Context cancellation counts as an abort: the run is stopping before its
// planned work is done and callers must see the result as partial.
func classifyFatal(err error) error {
	if errors.Is(err, bench.ErrContextGone) {
		return bench.ErrContextGone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return err
}
