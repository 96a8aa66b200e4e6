// Package bench defines the data model shared by every engine component:
// scenario specifications as produced by the config loader, per-iteration
// and per-run results, and the engine's error taxonomy.
//
// Everything in this package is plain data. Specs are immutable once
// parsed; results are immutable once produced. Behaviour lives in the
// packages that consume these types (contexts, runner, sla, task).
package bench

import (
	"fmt"
	"time"
)

// QuotaUnlimited is the parsed form of the "unlimited" quota value.
// Provisioners translate it to their provider's own unlimited sentinel.
const QuotaUnlimited int64 = -1

// RunnerType selects the concurrency/timing strategy for a scenario run.
type RunnerType string

const (
	// RunnerConstant launches a fixed number of workers that share a
	// total iteration count.
	RunnerConstant RunnerType = "constant"

	// RunnerSerial runs all iterations sequentially in one worker.
	RunnerSerial RunnerType = "serial"

	// RunnerConstantForDuration launches a fixed number of workers that
	// keep iterating until a wall-clock deadline.
	RunnerConstantForDuration RunnerType = "constant_for_duration"

	// RunnerRPS paces iteration starts at a target rate with a bounded
	// number of in-flight iterations.
	RunnerRPS RunnerType = "rps"
)

// IdentityPolicy selects how workers draw identities from the context pool.
type IdentityPolicy string

const (
	PolicyRoundRobin IdentityPolicy = "round_robin"
	PolicyRandom     IdentityPolicy = "random"
)

// SLAKind identifies one SLA rule type.
type SLAKind string

const (
	SLANoFailures            SLAKind = "no_failures"
	SLAMaxAvgDuration        SLAKind = "max_avg_duration"
	SLAMaxFailureRate        SLAKind = "max_failure_rate"
	SLAMaxPercentileDuration SLAKind = "max_percentile_duration"
	SLAMaxIterationDuration  SLAKind = "max_iteration_duration"
)

// ScenarioSpec identifies exactly one benchmark definition: which scenario
// body to run, with which arguments, inside which context, under which
// runner, judged by which SLA.
type ScenarioSpec struct {
	// Name is the registered scenario name,
	// e.g. "Volumes.create_and_attach_volume".
	Name string `json:"name" yaml:"name"`

	// Args are bound to every invocation of the scenario body.
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`

	Context ContextSpec `json:"context,omitempty" yaml:"context,omitempty"`
	Runner  RunnerSpec  `json:"runner" yaml:"runner"`
	SLA     SLASpec     `json:"sla,omitempty" yaml:"sla,omitempty"`
}

// ContextSpec drives context setup and teardown. Never mutated after
// construction.
type ContextSpec struct {
	// Tenants is the number of tenants to allocate.
	Tenants int `json:"tenants,omitempty" yaml:"tenants,omitempty"`

	// UsersPerTenant is the number of users created in each tenant.
	UsersPerTenant int `json:"users_per_tenant,omitempty" yaml:"users_per_tenant,omitempty"`

	// UseExistingUsers reuses identities already present on the provider
	// instead of creating new tenants and users.
	UseExistingUsers bool `json:"use_existing_users,omitempty" yaml:"use_existing_users,omitempty"`

	// Quotas maps resource name to limit. QuotaUnlimited means no limit.
	Quotas map[string]int64 `json:"quotas,omitempty" yaml:"quotas,omitempty"`

	// Preconditions are provisioning directives executed in order after
	// identities exist, e.g. pre-create a pool of volumes.
	Preconditions []PreconditionSpec `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`

	// IdentityPolicy selects how workers draw identities from the pool.
	// Empty means round-robin.
	IdentityPolicy IdentityPolicy `json:"identity_policy,omitempty" yaml:"identity_policy,omitempty"`
}

// PreconditionSpec is a single resource-provisioning directive.
type PreconditionSpec struct {
	// Kind names the resource type understood by the provisioner,
	// e.g. "volume" or "server".
	Kind string `json:"kind" yaml:"kind"`

	// Count is how many resources to pre-create. Zero means one.
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// RunnerSpec selects and parameterizes the runner strategy.
type RunnerSpec struct {
	Type RunnerType `json:"type" yaml:"type"`

	// Concurrency is the worker count for constant, constant_for_duration
	// and the in-flight bound default for rps.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Times is the total iteration count. Mutually exclusive with
	// Duration on one spec.
	Times int `json:"times,omitempty" yaml:"times,omitempty"`

	// Duration is the wall-clock stopping condition for
	// constant_for_duration and rps runs.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Rate is the target iteration starts per second for rps runs.
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// MaxInFlight bounds concurrent iterations for rps runs.
	// Zero falls back to Concurrency.
	MaxInFlight int `json:"max_in_flight,omitempty" yaml:"max_in_flight,omitempty"`

	// Timeout aborts the whole run when set, regardless of strategy.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SLASpec is a composable set of pass/fail rules. All rules must pass for
// overall success.
type SLASpec struct {
	Rules []SLARule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// SLARule is one declarative pass/fail rule. Which field carries the
// threshold depends on Kind: duration rules use Duration, rate rules use
// Threshold, percentile rules use Duration plus Percentile.
type SLARule struct {
	Kind       SLAKind       `json:"kind" yaml:"kind"`
	Threshold  float64       `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Percentile float64       `json:"percentile,omitempty" yaml:"percentile,omitempty"`
}

// Validate checks the spec for structural problems the schema cannot
// express. It never mutates the spec.
func (s *ScenarioSpec) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "scenario name is required"}
	}
	if err := s.Context.Validate(); err != nil {
		return err
	}
	if err := s.Runner.Validate(); err != nil {
		return err
	}
	return s.SLA.Validate()
}

// Validate checks context parameters.
func (c *ContextSpec) Validate() error {
	if c.Tenants < 0 {
		return &ValidationError{Field: "context.tenants", Message: "tenants must be >= 0"}
	}
	if c.UsersPerTenant < 0 {
		return &ValidationError{Field: "context.users_per_tenant", Message: "users_per_tenant must be >= 0"}
	}
	if !c.UseExistingUsers && c.Tenants > 0 && c.UsersPerTenant == 0 {
		return &ValidationError{Field: "context.users_per_tenant", Message: "users_per_tenant must be > 0 when tenants are created"}
	}
	switch c.IdentityPolicy {
	case "", PolicyRoundRobin, PolicyRandom:
	default:
		return &ValidationError{Field: "context.identity_policy", Message: fmt.Sprintf("unknown identity policy: %s", c.IdentityPolicy)}
	}
	for k, v := range c.Quotas {
		if v < QuotaUnlimited {
			return &ValidationError{Field: "context.quotas." + k, Message: "quota limit must be >= -1"}
		}
	}
	for i, p := range c.Preconditions {
		if p.Kind == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("context.preconditions[%d].kind", i),
				Message: "precondition kind is required",
			}
		}
		if p.Count < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("context.preconditions[%d].count", i),
				Message: "count must be >= 0",
			}
		}
	}
	return nil
}

// Validate checks runner parameters per strategy. Times and Duration
// cannot be set simultaneously for one run.
func (r *RunnerSpec) Validate() error {
	if r.Times > 0 && r.Duration > 0 {
		return &ValidationError{Field: "runner", Message: "times and duration cannot be set simultaneously for one run"}
	}

	switch r.Type {
	case RunnerConstant:
		if r.Concurrency <= 0 {
			return &ValidationError{Field: "runner.concurrency", Message: "concurrency must be > 0"}
		}
		if r.Times <= 0 {
			return &ValidationError{Field: "runner.times", Message: "times must be > 0"}
		}

	case RunnerSerial:
		if r.Times <= 0 {
			return &ValidationError{Field: "runner.times", Message: "times must be > 0"}
		}

	case RunnerConstantForDuration:
		if r.Concurrency <= 0 {
			return &ValidationError{Field: "runner.concurrency", Message: "concurrency must be > 0"}
		}
		if r.Duration <= 0 {
			return &ValidationError{Field: "runner.duration", Message: "duration must be > 0"}
		}

	case RunnerRPS:
		if r.Rate <= 0 {
			return &ValidationError{Field: "runner.rate", Message: "rate must be > 0"}
		}
		if r.Times <= 0 && r.Duration <= 0 {
			return &ValidationError{Field: "runner", Message: "rps runs need either times or duration"}
		}
		if r.MaxInFlight < 0 {
			return &ValidationError{Field: "runner.max_in_flight", Message: "max_in_flight must be >= 0"}
		}

	case "":
		return &ValidationError{Field: "runner.type", Message: "runner type is required"}

	default:
		return &ValidationError{Field: "runner.type", Message: fmt.Sprintf("unknown runner type: %s", r.Type)}
	}

	return nil
}

// Validate checks each SLA rule carries the threshold its kind needs.
func (s *SLASpec) Validate() error {
	for i, rule := range s.Rules {
		field := fmt.Sprintf("sla.rules[%d]", i)
		switch rule.Kind {
		case SLANoFailures:

		case SLAMaxAvgDuration, SLAMaxIterationDuration:
			if rule.Duration <= 0 {
				return &ValidationError{Field: field + ".duration", Message: "duration threshold must be > 0"}
			}

		case SLAMaxFailureRate:
			if rule.Threshold < 0 || rule.Threshold > 1 {
				return &ValidationError{Field: field + ".threshold", Message: "failure rate threshold must be within [0, 1]"}
			}

		case SLAMaxPercentileDuration:
			if rule.Duration <= 0 {
				return &ValidationError{Field: field + ".duration", Message: "duration threshold must be > 0"}
			}
			if rule.Percentile <= 0 || rule.Percentile >= 100 {
				return &ValidationError{Field: field + ".percentile", Message: "percentile must be within (0, 100)"}
			}

		case "":
			return &ValidationError{Field: field + ".kind", Message: "rule kind is required"}

		default:
			return &ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown SLA rule kind: %s", rule.Kind)}
		}
	}
	return nil
}

// ValidationError reports an invalid field in a parsed spec.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid spec field '" + e.Field + "': " + e.Message
}
