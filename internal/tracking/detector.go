// Package tracking cross-checks what a worker claimed against what is
// observably true. The detector is a pure function of one execution record
// plus the ground-truth observer: it never mutates the record, and its
// output is advisory -- a partially hallucinated record can still earn
// partial credit from the completion evaluator.
package tracking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/observe"
	"dirigent/internal/protocol"
)

// Check weights. Each tripped check contributes its weight to the
// unreliability score; the aggregate is capped at 1.0.
const (
	weightMissingArtifact    = 0.4
	weightBoundaryViolation  = 0.3
	weightInconsistency      = 0.2
	weightUnsupportedSuccess = 0.1
)

// capabilityClaims maps capability names to output phrases that amount to
// claiming that capability was exercised. A phrase match without the
// declared capability is a boundary violation in the result text.
var capabilityClaims = map[string][]string{
	"simulate":    {"ran the simulation", "simulation passed", "simulated the design"},
	"verify":      {"verification passed", "verified the design", "all assertions passed"},
	"synthesize":  {"synthesized the design", "synthesis completed", "generated the netlist"},
	"test":        {"tests passed", "ran the tests", "test suite passed"},
	"deploy":      {"deployed to", "deployment succeeded", "released to production"},
	"write_files": {"wrote the file", "created the file", "saved to disk"},
}

// Detector inspects execution records for hallucinated claims.
type Detector struct {
	obs observe.Observer
	log *zap.Logger
}

// NewDetector creates a detector backed by the given ground-truth observer.
func NewDetector(obs observe.Observer) *Detector {
	return &Detector{obs: obs, log: logging.L(logging.CategoryTracker)}
}

// Inspect derives the hallucination report for one record.
func (d *Detector) Inspect(ctx context.Context, rec protocol.ExecutionRecord) protocol.HallucinationReport {
	report := protocol.HallucinationReport{RecordID: rec.ID}
	score := 0.0

	// Claimed artifacts must be observably present.
	missing := 0
	for _, ref := range rec.ClaimedArtifacts {
		if d.obs != nil && d.obs.Exists(ctx, ref) {
			report.VerifiedArtifacts = append(report.VerifiedArtifacts, ref)
		} else {
			report.UnverifiableClaims = append(report.UnverifiableClaims, ref)
			missing++
		}
	}
	if len(rec.ClaimedArtifacts) > 0 && missing > 0 {
		score += weightMissingArtifact * float64(missing) / float64(len(rec.ClaimedArtifacts))
	}

	// Output text claiming actions outside the declared capability set.
	report.BoundaryViolations = boundaryClaimViolations(rec)
	if len(report.BoundaryViolations) > 0 {
		score += weightBoundaryViolation
	}

	// Internal consistency of the record itself.
	report.Inconsistencies = inconsistencies(rec)
	if len(report.Inconsistencies) > 0 {
		score += weightInconsistency
	}

	// Success asserted with no artifacts and no other positive evidence.
	// Text alone never counts as evidence.
	if unsupportedSuccess(rec) {
		report.UnverifiableClaims = append(report.UnverifiableClaims, "unsupported success claim")
		score += weightUnsupportedSuccess
	}

	if score > 1.0 {
		score = 1.0
	}
	report.Unreliability = score

	if report.Flagged() {
		d.log.Debug("record flagged",
			zap.String("record", rec.ID),
			zap.Float64("unreliability", score),
			zap.Int("unverifiable", len(report.UnverifiableClaims)))
	}
	return report
}

// boundaryClaimViolations finds capability-claim phrases in the output for
// capabilities the worker does not declare.
func boundaryClaimViolations(rec protocol.ExecutionRecord) []string {
	out := strings.ToLower(rec.Output)
	if out == "" {
		return nil
	}

	capabilities := make([]string, 0, len(capabilityClaims))
	for c := range capabilityClaims {
		capabilities = append(capabilities, c)
	}
	sort.Strings(capabilities)

	var violations []string
	worker := rec.Assignment.Worker
	for _, capability := range capabilities {
		if worker.HasCapability(capability) {
			continue
		}
		for _, phrase := range capabilityClaims[capability] {
			if strings.Contains(out, phrase) {
				violations = append(violations,
					fmt.Sprintf("output claims %q but worker %s lacks capability %q", phrase, worker.ID, capability))
				break
			}
		}
	}
	return violations
}

// inconsistencies flags records whose fields contradict each other.
func inconsistencies(rec protocol.ExecutionRecord) []string {
	var out []string

	if rec.Success && rec.Failure != nil {
		out = append(out, "success flag set alongside a recorded failure")
	}
	if !rec.Success && rec.Failure == nil && len(rec.ClaimedArtifacts) > 0 {
		out = append(out, "failure without error detail yet artifacts claimed")
	}

	lower := strings.ToLower(rec.Output)
	if rec.Success && (strings.Contains(lower, "failed to") || strings.Contains(lower, "could not complete")) {
		out = append(out, "success flag contradicts failure language in output")
	}
	return out
}

// unsupportedSuccess reports a success claim with nothing backing it: no
// claimed artifacts and no recorded failure that would explain their absence.
func unsupportedSuccess(rec protocol.ExecutionRecord) bool {
	return rec.Success && len(rec.ClaimedArtifacts) == 0
}
