package bench

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrorInfo is the structured form of a failed iteration's error. It is
// data, not a Go error: once an error has been converted to ErrorInfo it
// no longer propagates.
type ErrorInfo struct {
	// Type is the Go type of the original error, or "panic".
	Type string `json:"type" yaml:"type"`

	Message string `json:"message" yaml:"message"`

	// Traceback is only populated for recovered panics.
	Traceback string `json:"traceback,omitempty" yaml:"traceback,omitempty"`
}

// NewErrorInfo converts an error into its structured form.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

// NewPanicInfo converts a recovered panic value into its structured form,
// capturing the goroutine stack.
func NewPanicInfo(recovered any) *ErrorInfo {
	return &ErrorInfo{
		Type:      "panic",
		Message:   fmt.Sprintf("%v", recovered),
		Traceback: string(debug.Stack()),
	}
}

// IterationResult is produced once per scenario invocation and is
// immutable after creation. It is owned by the runner until handed to the
// SLA evaluator.
type IterationResult struct {
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Error is nil for successful iterations.
	Error *ErrorInfo `json:"error,omitempty" yaml:"error,omitempty"`

	// Output is the scenario body's raw return value, if any.
	Output json.RawMessage `json:"output,omitempty" yaml:"output,omitempty"`

	// Identity names the tenant/user the iteration ran as.
	Identity string `json:"identity,omitempty" yaml:"identity,omitempty"`
}

// Failed reports whether the iteration carries an error.
func (r IterationResult) Failed() bool {
	return r.Error != nil
}

// RuleResult is the verdict of a single SLA rule.
type RuleResult struct {
	Kind      SLAKind `json:"kind" yaml:"kind"`
	Passed    bool    `json:"passed" yaml:"passed"`
	Observed  string  `json:"observed" yaml:"observed"`
	Threshold string  `json:"threshold" yaml:"threshold"`

	// Detail carries the human-readable violation for failed rules.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Verdict is the overall SLA outcome: the logical AND of all rule
// verdicts, with one violation entry per failed rule.
type Verdict struct {
	Passed     bool         `json:"passed" yaml:"passed"`
	Violations []string     `json:"violations,omitempty" yaml:"violations,omitempty"`
	Rules      []RuleResult `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// RunResult is the terminal artifact of one ScenarioSpec's execution,
// owned by the task orchestrator for reporting.
type RunResult struct {
	ScenarioName string    `json:"scenario_name" yaml:"scenario_name"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`

	Iterations []IterationResult `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Verdict    *Verdict          `json:"verdict,omitempty" yaml:"verdict,omitempty"`

	// SetupError is set when the context could not be built; the scenario
	// never ran and Iterations is empty.
	SetupError string `json:"setup_error,omitempty" yaml:"setup_error,omitempty"`

	// Aborted marks a run stopped by an unrecoverable mid-run condition.
	// Iterations holds the partial sequence completed before the abort.
	Aborted     bool   `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	AbortReason string `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
}

// Run outcomes, ordered from best to worst.
const (
	OutcomePassed      = "passed"
	OutcomeSLAFailed   = "sla_failed"
	OutcomeAborted     = "aborted"
	OutcomeSetupFailed = "setup_failed"
)

// Outcome classifies the run for reporting. Callers must be able to tell
// "ran but violated SLA" apart from "failed to run".
func (r *RunResult) Outcome() string {
	switch {
	case r.SetupError != "":
		return OutcomeSetupFailed
	case r.Aborted:
		return OutcomeAborted
	case r.Verdict != nil && !r.Verdict.Passed:
		return OutcomeSLAFailed
	default:
		return OutcomePassed
	}
}

// FailureCount returns the number of failed iterations.
func (r *RunResult) FailureCount() int {
	n := 0
	for _, it := range r.Iterations {
		if it.Failed() {
			n++
		}
	}
	return n
}
