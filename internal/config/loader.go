package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/loadstone/loadstone/internal/bench"
)

// Task is a fully resolved task: defaults merged, durations parsed,
// quotas normalized. Every spec has passed structural validation.
type Task struct {
	Title     string
	Scenarios []bench.ScenarioSpec
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func compiledSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("task.json", strings.NewReader(taskSchema)); err != nil {
			panic(fmt.Sprintf("config: embedded task schema: %v", err))
		}
		schema = compiler.MustCompile("task.json")
	})
	return schema
}

// LoadFile reads and resolves a task file from disk.
func LoadFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	task, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return task, nil
}

// Load parses YAML task data, validates it against the embedded schema,
// and resolves it into engine specs. Schema violations and per-scenario
// validation failures are joined so one pass reports every problem.
func Load(data []byte) (*Task, error) {
	if err := validateShape(data); err != nil {
		return nil, err
	}

	var file TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing task file: %w", err)
	}
	return Resolve(&file)
}

// validateShape runs the document through the JSON schema. The YAML is
// round-tripped through JSON first so the validator sees the value types
// the schema speaks.
func validateShape(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing task file: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting task file to JSON: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return fmt.Errorf("converting task file to JSON: %w", err)
	}

	if err := compiledSchema().Validate(jsonDoc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return errors.Join(flattenSchemaErrors(verr)...)
		}
		return fmt.Errorf("validating task file: %w", err)
	}
	return nil
}

// flattenSchemaErrors turns the validator's cause tree into one flat
// list of located messages.
func flattenSchemaErrors(err *jsonschema.ValidationError) []error {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []error{fmt.Errorf("task file invalid at %s: %s", loc, err.Message)}
	}
	var errs []error
	for _, cause := range err.Causes {
		errs = append(errs, flattenSchemaErrors(cause)...)
	}
	return errs
}

// Resolve merges file-level defaults into each scenario and converts the
// raw document into engine specs.
func Resolve(file *TaskFile) (*Task, error) {
	task := &Task{Title: file.Title}

	var errs []error
	for i := range file.Scenarios {
		raw := &file.Scenarios[i]
		applyDefaults(raw, file.Defaults)

		spec, err := resolveScenario(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("scenario %d (%s): %w", i, raw.Name, err))
			continue
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %d (%s): %w", i, raw.Name, err))
			continue
		}
		task.Scenarios = append(task.Scenarios, spec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return task, nil
}

func applyDefaults(raw *RawScenario, defaults *Defaults) {
	if defaults == nil {
		return
	}
	if raw.Context == nil {
		raw.Context = defaults.Context
	}
	if raw.Runner == nil {
		raw.Runner = defaults.Runner
	}
	if raw.SLA == nil {
		raw.SLA = defaults.SLA
	}
}

func resolveScenario(raw *RawScenario) (bench.ScenarioSpec, error) {
	spec := bench.ScenarioSpec{
		Name: raw.Name,
		Args: raw.Args,
	}

	if raw.Context != nil {
		ctx, err := resolveContext(raw.Context)
		if err != nil {
			return spec, err
		}
		spec.Context = ctx
	}

	if raw.Runner == nil {
		return spec, errors.New("runner section is required")
	}
	run, err := resolveRunner(raw.Runner)
	if err != nil {
		return spec, err
	}
	spec.Runner = run

	for i, rule := range raw.SLA {
		resolved, err := resolveSLARule(rule)
		if err != nil {
			return spec, fmt.Errorf("sla rule %d: %w", i, err)
		}
		spec.SLA.Rules = append(spec.SLA.Rules, resolved)
	}
	return spec, nil
}

func resolveContext(raw *RawContext) (bench.ContextSpec, error) {
	spec := bench.ContextSpec{
		Tenants:          raw.Tenants,
		UsersPerTenant:   raw.UsersPerTenant,
		UseExistingUsers: raw.UseExistingUsers,
		IdentityPolicy:   bench.IdentityPolicy(raw.IdentityPolicy),
	}

	if len(raw.Quotas) > 0 {
		spec.Quotas = make(map[string]int64, len(raw.Quotas))
		for resource, limit := range raw.Quotas {
			parsed, err := parseQuota(limit)
			if err != nil {
				return spec, fmt.Errorf("quota %q: %w", resource, err)
			}
			spec.Quotas[resource] = parsed
		}
	}

	for _, pre := range raw.Preconditions {
		spec.Preconditions = append(spec.Preconditions, bench.PreconditionSpec{
			Kind:  pre.Kind,
			Count: pre.Count,
			Args:  pre.Args,
		})
	}
	return spec, nil
}

// parseQuota accepts an integer limit or the string "unlimited". YAML
// hands integers over as int; documents built in Go or round-tripped
// through JSON may carry float64.
func parseQuota(v any) (int64, error) {
	switch limit := v.(type) {
	case int:
		return int64(limit), nil
	case int64:
		return limit, nil
	case uint64:
		return int64(limit), nil
	case float64:
		n := int64(limit)
		if float64(n) != limit {
			return 0, fmt.Errorf("limit must be an integer, got %v", limit)
		}
		return n, nil
	case string:
		if limit == "unlimited" {
			return bench.QuotaUnlimited, nil
		}
		return 0, fmt.Errorf("limit must be an integer or \"unlimited\", got %q", limit)
	default:
		return 0, fmt.Errorf("limit must be an integer or \"unlimited\", got %T", v)
	}
}

func resolveRunner(raw *RawRunner) (bench.RunnerSpec, error) {
	spec := bench.RunnerSpec{
		Type:        bench.RunnerType(raw.Type),
		Concurrency: raw.Concurrency,
		Times:       raw.Times,
		Rate:        raw.Rate,
		MaxInFlight: raw.MaxInFlight,
	}

	var err error
	if spec.Duration, err = parseDuration(raw.Duration, "duration"); err != nil {
		return spec, err
	}
	if spec.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return spec, err
	}
	return spec, nil
}

func resolveSLARule(raw RawSLA) (bench.SLARule, error) {
	rule := bench.SLARule{
		Kind:       bench.SLAKind(raw.Kind),
		Threshold:  raw.Threshold,
		Percentile: raw.Percentile,
	}

	var err error
	if rule.Duration, err = parseDuration(raw.Duration, "duration"); err != nil {
		return rule, err
	}
	return rule, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, s)
	}
	return d, nil
}
