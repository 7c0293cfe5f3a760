// Package schema normalizes and validates directive envelopes against
// per-target parameter contracts. The adapter applies a fixed repair
// pipeline -- rename maps, fuzzy field matching, shape coercion, inference
// and defaults -- and returns either a fully normalized envelope or a
// structured violation list. It never partially normalizes silently: every
// transformation lands in an ordered log on the result.
package schema

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// Violation is one hard failure after the full pipeline ran.
type Violation struct {
	Field  string `json:"field"`
	Rule   string `json:"rule"` // missing_required, kind_mismatch, constraint, unknown_target
	Detail string `json:"detail"`
}

// Result is the adapter's output: the normalized envelope, the ordered
// transformation log, advisory warnings and hard violations. Only a Result
// with no violations may be routed.
type Result struct {
	Envelope   protocol.DirectiveEnvelope
	Log        []string
	Warnings   []string
	Violations []Violation
}

// Valid reports whether the envelope satisfied its contract.
func (r Result) Valid() bool { return len(r.Violations) == 0 }

// ViolatedFields lists the field names carried by the violations.
func (r Result) ViolatedFields() []string {
	var fields []string
	for _, v := range r.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

// InferenceRule attempts to derive a missing field value from the rest of
// the envelope. Reports ok=false when nothing can be derived.
type InferenceRule func(env protocol.DirectiveEnvelope) (any, bool)

// Adapter holds the contracts and repair tables for all registered targets.
type Adapter struct {
	contracts     map[string]protocol.ParameterContract
	targetRenames map[string]map[string]string
	globalRenames map[string]string
	inference     map[string]InferenceRule
	threshold     float64
	log           *zap.Logger
}

// NewAdapter creates an adapter with the given fuzzy-match threshold.
func NewAdapter(threshold float64) *Adapter {
	return &Adapter{
		contracts:     map[string]protocol.ParameterContract{},
		targetRenames: map[string]map[string]string{},
		globalRenames: map[string]string{},
		inference:     map[string]InferenceRule{},
		threshold:     threshold,
		log:           logging.L(logging.CategorySchema),
	}
}

// RegisterContract installs the contract for a target. Later registrations
// replace earlier ones.
func (a *Adapter) RegisterContract(c protocol.ParameterContract) {
	a.contracts[c.Target] = c
}

// Contract returns the registered contract for a target.
func (a *Adapter) Contract(target string) (protocol.ParameterContract, bool) {
	c, ok := a.contracts[target]
	return c, ok
}

// Targets lists registered target names in sorted order.
func (a *Adapter) Targets() []string {
	names := make([]string, 0, len(a.contracts))
	for t := range a.contracts {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// RegisterTargetRenames installs known incoming->canonical aliases for one
// target. Applied before the global map.
func (a *Adapter) RegisterTargetRenames(target string, renames map[string]string) {
	a.targetRenames[target] = renames
}

// RegisterGlobalRename installs a cross-target alias.
func (a *Adapter) RegisterGlobalRename(from, to string) {
	a.globalRenames[from] = to
}

// RegisterInference installs a named inference rule for a field name.
func (a *Adapter) RegisterInference(field string, rule InferenceRule) {
	a.inference[field] = rule
}

// Normalize runs the full pipeline on one envelope. The input is never
// mutated; the result owns a fresh parameter map.
func (a *Adapter) Normalize(env protocol.DirectiveEnvelope) Result {
	res := Result{Envelope: env.Clone()}

	contract, ok := a.contracts[env.Target]
	if !ok {
		res.Violations = append(res.Violations, Violation{
			Field:  "target",
			Rule:   "unknown_target",
			Detail: fmt.Sprintf("no contract registered for target %q", env.Target),
		})
		return res
	}

	params := res.Envelope.Parameters

	// 1. Target-specific rename map. Never overwrites a key that already
	// exists under the canonical name.
	a.applyRenames(&res, params, a.targetRenames[env.Target], "target_rename")

	// 2. Global rename map.
	a.applyRenames(&res, params, a.globalRenames, "global_rename")

	// 3. Fuzzy field match for keys with no canonical home. Incoming keys
	// are visited in sorted order so the outcome is deterministic; declared
	// keys are visited in declaration order so ties go to the first.
	a.applyFuzzy(&res, params, contract)

	// 4. Shape coercion between explicitly allowed representations.
	for _, spec := range contract.Params {
		if spec.Shape != protocol.ShapePortList {
			continue
		}
		v, present := params[spec.Name]
		if !present {
			continue
		}
		coerced, ok := coercePortList(v)
		if !ok {
			res.Violations = append(res.Violations, Violation{
				Field:  spec.Name,
				Rule:   "kind_mismatch",
				Detail: "value does not fit the port declaration grammar",
			})
			continue
		}
		if fmt.Sprintf("%v", coerced) != fmt.Sprintf("%v", v) {
			res.Log = append(res.Log, fmt.Sprintf("shape_coercion: %s -> port records", spec.Name))
		}
		params[spec.Name] = coerced
	}

	// 5. Default/inference fill for still-missing fields.
	for _, spec := range contract.Params {
		if _, present := params[spec.Name]; present {
			continue
		}

		if !spec.Required {
			if spec.Default != nil {
				params[spec.Name] = spec.Default
				res.Log = append(res.Log, fmt.Sprintf("default: %s", spec.Name))
			}
			continue
		}

		if rule, ok := a.inference[spec.Name]; ok {
			if v, derived := rule(res.Envelope); derived {
				if typed, ok := coerceKind(v, spec.Kind); ok {
					params[spec.Name] = typed
					res.Log = append(res.Log, fmt.Sprintf("inferred: %s", spec.Name))
					continue
				}
			}
		}

		if spec.Inferable {
			params[spec.Name] = zeroValue(spec.Kind)
			res.Log = append(res.Log, fmt.Sprintf("zero_filled: %s", spec.Name))
			continue
		}

		res.Violations = append(res.Violations, Violation{
			Field:  spec.Name,
			Rule:   "missing_required",
			Detail: fmt.Sprintf("required field %q is missing and not inferable", spec.Name),
		})
	}

	// 6. Typing and constraints for every declared field now present. Running
	// after the fill step keeps defaulted, inferred and zero-filled values
	// under the same checks as extracted ones.
	for _, spec := range contract.Params {
		v, present := params[spec.Name]
		if !present {
			continue
		}
		if spec.Shape == protocol.ShapePortList {
			// Already coerced above; constraint checks do not apply to
			// structured lists.
			continue
		}
		typed, ok := coerceKind(v, spec.Kind)
		if !ok {
			res.Violations = append(res.Violations, Violation{
				Field:  spec.Name,
				Rule:   "kind_mismatch",
				Detail: fmt.Sprintf("value %v is not a %s", v, spec.Kind),
			})
			continue
		}
		if fmt.Sprintf("%v", typed) != fmt.Sprintf("%v", v) {
			res.Log = append(res.Log, fmt.Sprintf("typed: %s -> %s", spec.Name, spec.Kind))
		}
		params[spec.Name] = typed

		if detail := checkConstraints(typed, spec); detail != "" {
			res.Violations = append(res.Violations, Violation{
				Field:  spec.Name,
				Rule:   "constraint",
				Detail: detail,
			})
		}
	}

	// 7. Extraneous-field policy.
	if !contract.AllowUnknown {
		for _, key := range sortedKeys(params) {
			if _, declared := contract.Spec(key); !declared {
				delete(params, key)
				res.Warnings = append(res.Warnings, fmt.Sprintf("dropped unknown field %q", key))
			}
		}
	}

	if len(res.Violations) > 0 {
		a.log.Debug("validation failed",
			zap.String("target", env.Target),
			zap.Int("violations", len(res.Violations)))
	}
	return res
}

// applyRenames moves aliased keys to their canonical names without
// clobbering existing canonical values.
func (a *Adapter) applyRenames(res *Result, params map[string]any, renames map[string]string, step string) {
	if len(renames) == 0 {
		return
	}
	for _, from := range sortedKeys(params) {
		to, ok := renames[from]
		if !ok || from == to {
			continue
		}
		if _, exists := params[to]; exists {
			continue
		}
		params[to] = params[from]
		delete(params, from)
		res.Log = append(res.Log, fmt.Sprintf("%s: %s -> %s", step, from, to))
	}
}

// applyFuzzy maps undeclared incoming keys onto the best-scoring free
// contract key at or above the threshold.
func (a *Adapter) applyFuzzy(res *Result, params map[string]any, contract protocol.ParameterContract) {
	for _, key := range sortedKeys(params) {
		if _, declared := contract.Spec(key); declared {
			continue
		}

		bestScore := 0.0
		bestName := ""
		for _, spec := range contract.Params {
			if _, taken := params[spec.Name]; taken {
				continue
			}
			// Strictly-greater keeps the first declared key on ties.
			if score := Similarity(key, spec.Name); score > bestScore {
				bestScore = score
				bestName = spec.Name
			}
		}

		if bestName != "" && bestScore >= a.threshold {
			params[bestName] = params[key]
			delete(params, key)
			res.Log = append(res.Log, fmt.Sprintf("fuzzy_match: %s -> %s (%.2f)", key, bestName, bestScore))
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// BUILT-IN INFERENCE RULES
// =============================================================================

var declNameRe = regexp.MustCompile(`\b(?:module|entity|component|function|block)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// InferNameFrom returns a rule deriving a name by scanning the given
// free-text field for a recognizable declaration pattern.
func InferNameFrom(field string) InferenceRule {
	return func(env protocol.DirectiveEnvelope) (any, bool) {
		text, ok := env.Parameters[field].(string)
		if !ok {
			return nil, false
		}
		m := declNameRe.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		return m[1], true
	}
}
