package bench

import (
	"errors"
	"fmt"
)

// ErrContextGone signals that the execution context has been torn down or
// marked dead while a runner was still using it. Runners treat it as
// unrecoverable.
var ErrContextGone = errors.New("execution context is gone")

// ContextSetupError is fatal to one scenario's run. Whatever was created
// before the failing step has already been torn down when this error
// surfaces. The task orchestrator recovers from it by recording a
// setup-failed RunResult and moving on.
type ContextSetupError struct {
	// Step names the provisioning step that failed,
	// e.g. "create_tenant" or "set_quota".
	Step string
	Err  error
}

func (e *ContextSetupError) Error() string {
	return fmt.Sprintf("context setup failed at %s: %v", e.Step, e.Err)
}

func (e *ContextSetupError) Unwrap() error { return e.Err }

// RunnerAbortedError signals that a run stopped on an unrecoverable
// condition and the returned iteration sequence is partial, not silently
// truncated.
type RunnerAbortedError struct {
	Reason string
	// Completed is the number of iterations finished before the abort.
	Completed int
	Err       error
}

func (e *RunnerAbortedError) Error() string {
	return fmt.Sprintf("runner aborted after %d iterations: %s", e.Completed, e.Reason)
}

func (e *RunnerAbortedError) Unwrap() error { return e.Err }

// NoSuchScenarioError reports a scenario name with no registered body.
type NoSuchScenarioError struct {
	Name string
}

func (e *NoSuchScenarioError) Error() string {
	return fmt.Sprintf("no scenario registered under %q", e.Name)
}
