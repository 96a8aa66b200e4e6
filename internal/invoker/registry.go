// Package invoker wraps a single scenario-body call: it binds an identity
// from the context pool, times the call, and converts every body failure
// into structured result data so one failing iteration can never abort a
// runner's loop. It also holds the registry mapping scenario names to
// their implementations.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/provision"
)

// Call carries everything one iteration of a scenario body may use: the
// identity it runs as, its bound arguments, and the context's pre-created
// resource pools.
type Call struct {
	Identity provision.Identity
	Args     map[string]any

	// Precreated returns the context's pre-created resources of a kind,
	// e.g. the volume pool a precondition built.
	Precreated func(kind string) []provision.Resource
}

// Scenario is the capability a benchmark body implements. Run performs
// the scenario exactly once and reports success or failure through its
// return values; the invoker owns timing and error capture.
type Scenario interface {
	Run(ctx context.Context, call Call) (json.RawMessage, error)
}

// ScenarioFunc adapts a function to the Scenario interface.
type ScenarioFunc func(ctx context.Context, call Call) (json.RawMessage, error)

// Run implements Scenario.
func (f ScenarioFunc) Run(ctx context.Context, call Call) (json.RawMessage, error) {
	return f(ctx, call)
}

// Registry maps scenario names to implementations. New scenario types
// register an implementation rather than relying on runtime name
// resolution.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Register adds a scenario under name. Duplicate names are an error.
func (r *Registry) Register(name string, s Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scenarios[name]; exists {
		return fmt.Errorf("scenario %q already registered", name)
	}
	r.scenarios[name] = s
	return nil
}

// Get looks a scenario up by name.
func (r *Registry) Get(name string) (Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[name]
	if !ok {
		return nil, &bench.NoSuchScenarioError{Name: name}
	}
	return s, nil
}

// Names returns all registered scenario names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
