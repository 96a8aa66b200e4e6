// Package config loads task files: YAML documents listing fully-resolved
// scenario specifications. Files are validated against a JSON schema
// before decoding, then resolved into the engine's spec types. Any
// templating that produced the file happened upstream; the engine never
// sees template text.
package config

// TaskFile is the raw shape of a task document before resolution.
// Durations are strings ("30s", "2m"), quota limits are integers or the
// string "unlimited".
type TaskFile struct {
	// Title names the task for reporting.
	Title string `yaml:"title,omitempty" json:"title,omitempty"`

	// Defaults are merged into every scenario that omits the matching
	// section. They are the file-level form of the shared presets.
	Defaults *Defaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	Scenarios []RawScenario `yaml:"scenarios" json:"scenarios"`
}

// Defaults holds sections applied to scenarios that omit them.
type Defaults struct {
	Context *RawContext `yaml:"context,omitempty" json:"context,omitempty"`
	Runner  *RawRunner  `yaml:"runner,omitempty" json:"runner,omitempty"`
	SLA     []RawSLA    `yaml:"sla,omitempty" json:"sla,omitempty"`
}

// RawScenario is one scenario entry as written in YAML.
type RawScenario struct {
	Name    string         `yaml:"name" json:"name"`
	Args    map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
	Context *RawContext    `yaml:"context,omitempty" json:"context,omitempty"`
	Runner  *RawRunner     `yaml:"runner,omitempty" json:"runner,omitempty"`
	SLA     []RawSLA       `yaml:"sla,omitempty" json:"sla,omitempty"`
}

// RawContext mirrors bench.ContextSpec with file-friendly value types.
type RawContext struct {
	Tenants          int               `yaml:"tenants,omitempty" json:"tenants,omitempty"`
	UsersPerTenant   int               `yaml:"users_per_tenant,omitempty" json:"users_per_tenant,omitempty"`
	UseExistingUsers bool              `yaml:"use_existing_users,omitempty" json:"use_existing_users,omitempty"`
	Quotas           map[string]any    `yaml:"quotas,omitempty" json:"quotas,omitempty"`
	Preconditions    []RawPrecondition `yaml:"preconditions,omitempty" json:"preconditions,omitempty"`
	IdentityPolicy   string            `yaml:"identity_policy,omitempty" json:"identity_policy,omitempty"`
}

// RawPrecondition mirrors bench.PreconditionSpec.
type RawPrecondition struct {
	Kind  string         `yaml:"kind" json:"kind"`
	Count int            `yaml:"count,omitempty" json:"count,omitempty"`
	Args  map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// RawRunner mirrors bench.RunnerSpec with string durations.
type RawRunner struct {
	Type        string  `yaml:"type" json:"type"`
	Concurrency int     `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Times       int     `yaml:"times,omitempty" json:"times,omitempty"`
	Duration    string  `yaml:"duration,omitempty" json:"duration,omitempty"`
	Rate        float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
	MaxInFlight int     `yaml:"max_in_flight,omitempty" json:"max_in_flight,omitempty"`
	Timeout     string  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RawSLA mirrors bench.SLARule with string durations.
type RawSLA struct {
	Kind       string  `yaml:"kind" json:"kind"`
	Threshold  float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Duration   string  `yaml:"duration,omitempty" json:"duration,omitempty"`
	Percentile float64 `yaml:"percentile,omitempty" json:"percentile,omitempty"`
}

// taskSchema validates the task document shape before decoding. Semantic
// constraints the schema cannot express (times/duration exclusivity,
// per-type runner parameters) are enforced by bench spec validation
// after resolution.
const taskSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["scenarios"],
  "properties": {
    "title": {"type": "string"},
    "defaults": {
      "type": "object",
      "properties": {
        "context": {"$ref": "#/definitions/context"},
        "runner": {"$ref": "#/definitions/runner"},
        "sla": {"$ref": "#/definitions/sla"}
      },
      "additionalProperties": false
    },
    "scenarios": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "args": {"type": "object"},
          "context": {"$ref": "#/definitions/context"},
          "runner": {"$ref": "#/definitions/runner"},
          "sla": {"$ref": "#/definitions/sla"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false,
  "definitions": {
    "context": {
      "type": "object",
      "properties": {
        "tenants": {"type": "integer", "minimum": 0},
        "users_per_tenant": {"type": "integer", "minimum": 0},
        "use_existing_users": {"type": "boolean"},
        "quotas": {
          "type": "object",
          "additionalProperties": {
            "anyOf": [
              {"type": "integer", "minimum": -1},
              {"type": "string", "enum": ["unlimited"]}
            ]
          }
        },
        "preconditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["kind"],
            "properties": {
              "kind": {"type": "string", "minLength": 1},
              "count": {"type": "integer", "minimum": 0},
              "args": {"type": "object"}
            },
            "additionalProperties": false
          }
        },
        "identity_policy": {"type": "string", "enum": ["round_robin", "random"]}
      },
      "additionalProperties": false
    },
    "runner": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["constant", "serial", "constant_for_duration", "rps"]},
        "concurrency": {"type": "integer", "minimum": 0},
        "times": {"type": "integer", "minimum": 0},
        "duration": {"type": "string"},
        "rate": {"type": "number", "minimum": 0},
        "max_in_flight": {"type": "integer", "minimum": 0},
        "timeout": {"type": "string"}
      },
      "additionalProperties": false
    },
    "sla": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {
            "type": "string",
            "enum": ["no_failures", "max_avg_duration", "max_failure_rate", "max_percentile_duration", "max_iteration_duration"]
          },
          "threshold": {"type": "number"},
          "duration": {"type": "string"},
          "percentile": {"type": "number"}
        },
        "additionalProperties": false
      }
    }
  }
}`
