// Package task drives a sequence of resolved scenario specifications
// through the full lifecycle: context setup, runner execution, SLA
// evaluation, context teardown, and the compilation of per-scenario run
// results into an overall report.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/contexts"
	"github.com/loadstone/loadstone/internal/invoker"
	"github.com/loadstone/loadstone/internal/runner"
	"github.com/loadstone/loadstone/internal/sla"
)

// Orchestrator executes scenario specs strictly sequentially: no two
// scenarios ever share a context or overlap in time, so quota and
// resource interference between unrelated benchmarks cannot occur.
// Within one scenario the runner may be highly concurrent.
type Orchestrator struct {
	manager  *contexts.Manager
	registry *invoker.Registry
	log      *log.Entry
}

// New creates an orchestrator over the given context manager and
// scenario registry.
func New(manager *contexts.Manager, registry *invoker.Registry) *Orchestrator {
	return &Orchestrator{
		manager:  manager,
		registry: registry,
		log:      log.WithField("component", "task"),
	}
}

// Validate checks that every spec is structurally sound and names a
// registered scenario, without provisioning anything. Errors are joined
// so a task file's problems surface in one pass.
func (o *Orchestrator) Validate(specs []bench.ScenarioSpec) error {
	var errs []error
	for i := range specs {
		spec := &specs[i]
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %d (%s): %w", i, spec.Name, err))
			continue
		}
		if _, err := o.registry.Get(spec.Name); err != nil {
			errs = append(errs, fmt.Errorf("scenario %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Run processes specs in the order given and returns one RunResult per
// spec. A failed SLA is a recorded result, not an orchestrator error; a
// setup failure aborts only its own spec. Run returns early only when
// ctx is cancelled, and even then the current scenario's teardown has
// already executed.
func (o *Orchestrator) Run(ctx context.Context, specs []bench.ScenarioSpec) []bench.RunResult {
	results := make([]bench.RunResult, 0, len(specs))
	for i := range specs {
		spec := &specs[i]
		o.log.WithFields(log.Fields{
			"scenario": spec.Name,
			"pos":      i,
			"runner":   spec.Runner.Type,
		}).Info("scenario starting")

		res := o.runOne(ctx, spec)
		results = append(results, res)
		o.log.WithFields(log.Fields{
			"scenario":   spec.Name,
			"outcome":    res.Outcome(),
			"iterations": len(res.Iterations),
			"failures":   res.FailureCount(),
		}).Info("scenario finished")

		if ctx.Err() != nil {
			o.log.Warn("task cancelled, skipping remaining scenarios")
			break
		}
	}
	return results
}

// runOne executes a single spec through its full lifecycle. All failure
// modes are converted into fields on the RunResult; nothing escapes.
func (o *Orchestrator) runOne(ctx context.Context, spec *bench.ScenarioSpec) (res bench.RunResult) {
	res = bench.RunResult{
		ScenarioName: spec.Name,
		StartedAt:    time.Now(),
	}
	// Named return: the deferred write must land on the value the caller
	// receives, whichever return path is taken.
	defer func() { res.FinishedAt = time.Now() }()

	body, err := o.registry.Get(spec.Name)
	if err != nil {
		res.SetupError = err.Error()
		return res
	}

	r, err := runner.NewForSpec(spec.Runner)
	if err != nil {
		res.SetupError = fmt.Sprintf("building runner: %v", err)
		return res
	}

	handle, err := o.manager.Setup(ctx, spec.Context)
	if err != nil {
		var setupErr *bench.ContextSetupError
		if errors.As(err, &setupErr) {
			res.SetupError = setupErr.Error()
		} else {
			res.SetupError = fmt.Sprintf("context setup: %v", err)
		}
		return res
	}
	// Teardown must happen exactly once whatever the runner does; the
	// manager's once-guard makes this defer safe alongside any earlier
	// teardown inside Setup's own error path.
	defer func() {
		// Teardown proceeds even when the run-level context was
		// cancelled; a user interrupt must not leak tenants.
		if terr := o.manager.Teardown(context.WithoutCancel(ctx), handle); terr != nil {
			o.log.WithError(terr).WithField("scenario", spec.Name).Warn("context teardown left residue")
		}
	}()

	iterations, runErr := r.Run(ctx, invoker.New(handle), body, spec.Args)
	res.Iterations = iterations

	if runErr != nil {
		var aborted *bench.RunnerAbortedError
		if errors.As(runErr, &aborted) {
			res.Aborted = true
			res.AbortReason = aborted.Reason
		} else {
			res.Aborted = true
			res.AbortReason = runErr.Error()
		}
	}

	// SLA evaluation covers whatever completed, partial or not, so a
	// degraded run still reports which rules its iterations violated.
	res.Verdict = sla.Evaluate(iterations, spec.SLA)
	return res
}
