package registry

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// Scoring weights for multi-candidate selection. The capability fraction
// dominates, specialization and tier proximity refine, breadth breaks near
// ties in favor of better-equipped workers.
const (
	weightCapability     = 0.40
	weightSpecialization = 0.30
	weightTier           = 0.20
	weightBreadth        = 0.10

	// specializationCap bounds how many tag overlaps count.
	specializationCap = 3

	// breadthSaturation is the capability-set size at which the breadth
	// component maxes out.
	breadthSaturation = 10

	// tierPenaltySpan is the tier surplus at which tier credit reaches zero.
	tierPenaltySpan = 4.0
)

// Router selects workers for task requirements against a registry.
type Router struct {
	reg *Registry
	log *zap.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg, log: logging.L(logging.CategoryRouter)}
}

// Route matches a requirement to the best available worker. Selection is
// deterministic: identical registry contents and requirement always yield
// the same assignment, with ties resolved by registration order.
func (r *Router) Route(req protocol.TaskRequirement) (protocol.TaskAssignment, error) {
	workers := r.reg.Snapshot()

	survivors, constraint := filterCandidates(workers, req)
	if len(survivors) == 0 {
		r.log.Warn("no capable worker",
			zap.String("category", req.Category),
			zap.String("constraint", constraint))
		return protocol.TaskAssignment{}, &protocol.NoCapableWorkerError{
			Category:   req.Category,
			Constraint: constraint,
		}
	}

	if len(survivors) == 1 {
		chosen := survivors[0]
		assignment := protocol.TaskAssignment{
			Requirement: req,
			Worker:      chosen,
			Confidence:  1.0,
			Rationale:   fmt.Sprintf("only capable worker for category %q", req.Category),
			Warnings:    boundaryConflicts(req, chosen),
		}
		return assignment, nil
	}

	// Multiple survivors: score each, highest wins, first registered wins
	// ties (strictly-greater comparison preserves registration order).
	bestIdx := 0
	bestScore := -1.0
	scores := make([]float64, len(survivors))
	for i, w := range survivors {
		s := scoreWorker(w, req)
		scores[i] = s
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	chosen := survivors[bestIdx]
	var alternatives []protocol.RankedWorker
	for i, w := range survivors {
		if i == bestIdx {
			continue
		}
		alternatives = append(alternatives, protocol.RankedWorker{WorkerID: w.ID, Score: scores[i]})
	}

	assignment := protocol.TaskAssignment{
		Requirement:  req,
		Worker:       chosen,
		Confidence:   bestScore,
		Rationale:    fmt.Sprintf("scored %.2f across %d capable workers", bestScore, len(survivors)),
		Alternatives: alternatives,
		Warnings:     boundaryConflicts(req, chosen),
	}

	r.log.Debug("routed requirement",
		zap.String("category", req.Category),
		zap.String("worker", chosen.ID),
		zap.Float64("score", bestScore),
		zap.Int("alternatives", len(alternatives)))
	return assignment, nil
}

// filterCandidates applies the hard constraints in order: live, category,
// tier, required capabilities. When nothing survives, the returned
// constraint names the filter that eliminated the last candidates.
func filterCandidates(workers []protocol.WorkerProfile, req protocol.TaskRequirement) ([]protocol.WorkerProfile, string) {
	stage := func(in []protocol.WorkerProfile, keep func(protocol.WorkerProfile) bool) []protocol.WorkerProfile {
		var out []protocol.WorkerProfile
		for _, w := range in {
			if keep(w) {
				out = append(out, w)
			}
		}
		return out
	}

	live := stage(workers, func(w protocol.WorkerProfile) bool { return w.Live })
	if len(live) == 0 {
		return nil, "liveness"
	}

	categorized := stage(live, func(w protocol.WorkerProfile) bool { return w.SupportsCategory(req.Category) })
	if len(categorized) == 0 {
		return nil, fmt.Sprintf("task category %q", req.Category)
	}

	tiered := stage(categorized, func(w protocol.WorkerProfile) bool { return w.MaxTier >= req.Tier })
	if len(tiered) == 0 {
		return nil, fmt.Sprintf("complexity tier %d", req.Tier)
	}

	capable := stage(tiered, func(w protocol.WorkerProfile) bool {
		for _, c := range req.RequiredCapabilities {
			if !w.HasCapability(c) {
				return false
			}
		}
		return true
	})
	if len(capable) == 0 {
		return nil, fmt.Sprintf("required capabilities %v", req.RequiredCapabilities)
	}

	return capable, ""
}

// scoreWorker computes the weighted selection score for one surviving
// candidate. All components are in [0, 1] before weighting.
func scoreWorker(w protocol.WorkerProfile, req protocol.TaskRequirement) float64 {
	// Capability fraction: required names always match after filtering,
	// optional names raise the fraction toward 1.0.
	total := len(req.RequiredCapabilities) + len(req.OptionalCapabilities)
	capFraction := 1.0
	if total > 0 {
		matched := len(req.RequiredCapabilities)
		for _, c := range req.OptionalCapabilities {
			if w.HasCapability(c) {
				matched++
			}
		}
		capFraction = float64(matched) / float64(total)
	}

	// Specialization: count tags whose sub-tokens overlap the category
	// tokens, capped.
	catTokens := tokenize(req.Category)
	overlaps := 0
	for _, tag := range w.Specializations {
		for tok := range tokenize(tag) {
			if catTokens[tok] {
				overlaps++
				break
			}
		}
	}
	if overlaps > specializationCap {
		overlaps = specializationCap
	}
	specScore := float64(overlaps) / float64(specializationCap)

	// Tier proximity: full credit at exact match, linearly decreasing as
	// the worker's ceiling exceeds the need.
	surplus := float64(w.MaxTier - req.Tier)
	tierScore := 1.0 - surplus/tierPenaltySpan
	if tierScore < 0 {
		tierScore = 0
	}

	// Breadth: saturating credit for a larger capability set.
	breadth := float64(len(w.Capabilities)) / breadthSaturation
	if breadth > 1 {
		breadth = 1
	}

	return weightCapability*capFraction +
		weightSpecialization*specScore +
		weightTier*tierScore +
		weightBreadth*breadth
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '/'
	}) {
		if t != "" {
			out[t] = true
		}
	}
	return out
}

// =============================================================================
// BOUNDARY-CONFLICT DETECTION
// =============================================================================

// prohibitionKeywords maps known prohibition names to the keyword families
// their violations tend to surface as in free-text task descriptions.
// Unlisted prohibitions fall back to their own tokens.
var prohibitionKeywords = map[string][]string{
	"verification": {"verify", "verification", "testbench", "simulate", "simulation", "assert"},
	"synthesis":    {"synthesize", "synthesis", "netlist", "gate-level"},
	"deployment":   {"deploy", "deployment", "release", "production", "publish"},
	"deletion":     {"delete", "remove", "destroy", "wipe", "drop"},
	"network":      {"download", "upload", "fetch", "http", "request"},
}

// boundaryConflicts scans the requirement description for keyword families
// associated with the chosen worker's prohibitions. Matches are advisory
// warnings, never blocking: free-text matching is approximate by nature.
func boundaryConflicts(req protocol.TaskRequirement, w protocol.WorkerProfile) []protocol.BoundaryWarning {
	desc := strings.ToLower(req.Description)
	if desc == "" {
		return nil
	}

	var warnings []protocol.BoundaryWarning
	for _, prohibition := range w.Prohibitions {
		family, ok := prohibitionKeywords[strings.ToLower(prohibition)]
		if !ok {
			for t := range tokenize(prohibition) {
				family = append(family, t)
			}
			sort.Strings(family)
		}
		for _, kw := range family {
			if strings.Contains(desc, kw) {
				warnings = append(warnings, protocol.BoundaryWarning{
					Prohibition: prohibition,
					Keyword:     kw,
				})
				break
			}
		}
	}
	return warnings
}
