// Package protocol defines the shared data model of the coordination engine:
// directive envelopes, parameter contracts, worker profiles, routing
// assignments, execution records and the derived reports that flow between
// the extractor, validator, router, tracker, evaluator and the loop.
//
// Everything here is a plain value type. Components communicate by passing
// these values around; none of them are mutated after creation except where
// explicitly noted (ExecutionRecord is owned by its invocation until it is
// appended to the session record list).
package protocol

import (
	"time"
)

// =============================================================================
// DIRECTIVES
// =============================================================================

// RawUtterance is one turn of free-form text from the upstream generator.
// It is opaque to everything except the extractor.
type RawUtterance string

// DirectiveEnvelope is one structured directive recovered from an utterance:
// a target identifier plus a flat parameter map. Never mutated after
// creation; the adapter returns a fresh normalized copy.
type DirectiveEnvelope struct {
	// Target names the registered target the directive addresses.
	Target string `json:"target"`

	// Parameters maps parameter names to raw values as extracted.
	Parameters map[string]any `json:"parameters"`

	// CorrelationID ties the envelope back to the producing turn. Optional.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Clone returns a deep-enough copy: the parameter map is copied, values are
// shared (values are treated as immutable throughout the engine).
func (e DirectiveEnvelope) Clone() DirectiveEnvelope {
	params := make(map[string]any, len(e.Parameters))
	for k, v := range e.Parameters {
		params[k] = v
	}
	return DirectiveEnvelope{Target: e.Target, Parameters: params, CorrelationID: e.CorrelationID}
}

// =============================================================================
// PARAMETER CONTRACTS
// =============================================================================

// ParamKind is the declared value kind of a contract parameter.
type ParamKind string

const (
	KindString ParamKind = "string"
	KindNumber ParamKind = "number"
	KindBool   ParamKind = "bool"
	KindList   ParamKind = "list"
	KindObject ParamKind = "object"
)

// ShapeHint marks a parameter whose list representation the adapter may
// coerce between structurally equivalent forms.
type ShapeHint string

const (
	// ShapeNone means no coercion beyond kind typing.
	ShapeNone ShapeHint = ""

	// ShapePortList coerces a flat list of "name [H:L]" declaration strings
	// into a list of {name, width} records.
	ShapePortList ShapeHint = "port_list"
)

// ParamSpec declares one parameter of a target contract.
type ParamSpec struct {
	Name      string    `yaml:"name" json:"name"`
	Kind      ParamKind `yaml:"kind" json:"kind"`
	Required  bool      `yaml:"required" json:"required"`
	Inferable bool      `yaml:"inferable" json:"inferable"` // zero-fill allowed when no inference rule matches
	Shape     ShapeHint `yaml:"shape,omitempty" json:"shape,omitempty"`

	// Constraints. Pattern is an RE2 expression checked against string
	// values. Min/Max bound numbers when non-nil. Enum restricts string
	// values to the listed set.
	Pattern string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Enum    []string `yaml:"enum,omitempty" json:"enum,omitempty"`

	// Default fills a missing optional parameter.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`
}

// ParameterContract is the per-target schema supplied at worker registration.
// Params are ordered: fuzzy-match ties resolve to the first declared key.
type ParameterContract struct {
	Target       string      `yaml:"target" json:"target"`
	Params       []ParamSpec `yaml:"params" json:"params"`
	AllowUnknown bool        `yaml:"allow_unknown" json:"allow_unknown"`
}

// Spec returns the declared spec for a parameter name.
func (c ParameterContract) Spec(name string) (ParamSpec, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// RequiredNames lists the required parameter names in declaration order.
func (c ParameterContract) RequiredNames() []string {
	var names []string
	for _, p := range c.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// =============================================================================
// WORKERS AND REQUIREMENTS
// =============================================================================

// WorkerProfile describes one capability-bounded worker as registered at
// startup. Live is the only field mutated at runtime, and only through the
// registry.
type WorkerProfile struct {
	ID              string   `yaml:"id" json:"id"`
	Categories      []string `yaml:"categories" json:"categories"`
	Capabilities    []string `yaml:"capabilities" json:"capabilities"`
	MaxTier         int      `yaml:"max_tier" json:"max_tier"`
	Specializations []string `yaml:"specializations" json:"specializations"`
	Prohibitions    []string `yaml:"prohibitions" json:"prohibitions"`
	Live            bool     `yaml:"live" json:"live"`
}

// HasCapability reports whether the profile declares the named capability.
func (w WorkerProfile) HasCapability(name string) bool {
	for _, c := range w.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// SupportsCategory reports whether the profile declares the task category.
func (w WorkerProfile) SupportsCategory(category string) bool {
	for _, c := range w.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// TaskRequirement is what a directive needs from a worker. Immutable once
// derived for a given coordination attempt.
type TaskRequirement struct {
	Category             string   `yaml:"category" json:"category"`
	Tier                 int      `yaml:"tier" json:"tier"`
	RequiredCapabilities []string `yaml:"required_capabilities" json:"required_capabilities"`
	OptionalCapabilities []string `yaml:"optional_capabilities" json:"optional_capabilities"`
	Description          string   `yaml:"description" json:"description"`
}

// RankedWorker is a scored alternative in a routing decision.
type RankedWorker struct {
	WorkerID string  `json:"worker_id"`
	Score    float64 `json:"score"`
}

// BoundaryWarning flags a possible capability-boundary conflict between a
// requirement description and a worker prohibition. Advisory, never blocking.
type BoundaryWarning struct {
	Prohibition string `json:"prohibition"`
	Keyword     string `json:"keyword"`
}

// TaskAssignment is one routing decision. Exactly one chosen worker,
// zero or more alternates. Retained for audit, never mutated.
type TaskAssignment struct {
	Requirement  TaskRequirement   `json:"requirement"`
	Worker       WorkerProfile     `json:"worker"`
	Confidence   float64           `json:"confidence"`
	Rationale    string            `json:"rationale"`
	Alternatives []RankedWorker    `json:"alternatives,omitempty"`
	Warnings     []BoundaryWarning `json:"warnings,omitempty"`
}

// =============================================================================
// EXECUTION
// =============================================================================

// Failure captures a worker-side or transport-side error on a record.
// Errors are values on the record; they never propagate past the loop.
type Failure struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// ExecutionRecord is the append-only account of one worker invocation.
type ExecutionRecord struct {
	ID               string            `json:"id"`
	Assignment       TaskAssignment    `json:"assignment"`
	Directive        DirectiveEnvelope `json:"directive"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Success          bool              `json:"success"`
	ClaimedArtifacts []string          `json:"claimed_artifacts,omitempty"`
	Output           string            `json:"output"`
	Failure          *Failure          `json:"failure,omitempty"`
}

// Duration is the wall-clock time of the invocation.
func (r ExecutionRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HallucinationReport cross-checks one record's claims against ground truth.
// Derived, advisory; a flagged record can still contribute partial credit.
type HallucinationReport struct {
	RecordID           string   `json:"record_id"`
	UnverifiableClaims []string `json:"unverifiable_claims,omitempty"`
	VerifiedArtifacts  []string `json:"verified_artifacts,omitempty"`
	BoundaryViolations []string `json:"boundary_violations,omitempty"`
	Inconsistencies    []string `json:"inconsistencies,omitempty"`

	// Unreliability is the weighted aggregate in [0, 1].
	Unreliability float64 `json:"unreliability"`
}

// Flagged reports whether the record's textual claims should be distrusted.
// Any tripped check flags the record; verified artifacts remain usable as
// evidence either way.
func (h HallucinationReport) Flagged() bool {
	return h.Unreliability > 0
}

// =============================================================================
// COMPLETION
// =============================================================================

// CompletionStatus is the evaluator's verdict over all records of a session.
// Recomputed every loop iteration.
type CompletionStatus struct {
	Satisfied bool               `json:"satisfied"`
	Score     float64            `json:"score"` // 0-100
	Unmet     []string           `json:"unmet,omitempty"`
	Grade     string             `json:"grade"`
	Metrics   map[string]float64 `json:"metrics,omitempty"` // per-criterion weighted contribution
}
