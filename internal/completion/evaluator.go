// Package completion scores whether the accumulated execution records of a
// session actually satisfy the original request. Scoring is a weighted sum
// over named criteria declared per task category; a criterion counts only
// when a record provides artifact-backed evidence for it -- text claims are
// insufficient once the hallucination detector has flagged the record.
package completion

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// Criterion is one named completion requirement within a category profile.
type Criterion struct {
	// Name identifies the criterion in CompletionStatus.Unmet and Metrics.
	Name string

	// Weight is the criterion's share of the 0-100 score. Weights within a
	// profile should sum to 1.0.
	Weight float64

	// Critical criteria veto completion outright when unmet, regardless
	// of the aggregate score.
	Critical bool

	// Keywords tie a record to this criterion: the record's output or one
	// of its verified artifacts must mention at least one. Empty keywords
	// match any record with verified artifacts.
	Keywords []string

	// RequireArtifact demands at least one verified artifact on the
	// supporting record. Criteria without it accept an unflagged
	// successful record as evidence.
	RequireArtifact bool
}

// Profile declares the criteria for one task category.
type Profile struct {
	Category string
	Criteria []Criterion
}

// DefaultBuildProfile is the calibrated profile for "build"-type requests:
// the primary deliverable and its verification dominate, documentation and
// checks refine.
func DefaultBuildProfile() Profile {
	return Profile{
		Category: "build",
		Criteria: []Criterion{
			{Name: "produce_artifact", Weight: 0.40, Critical: true, RequireArtifact: true},
			{Name: "verification_performed", Weight: 0.40, RequireArtifact: true,
				Keywords: []string{"verify", "verification", "testbench", "simulation", "assert"}},
			{Name: "documentation_present", Weight: 0.10, RequireArtifact: true,
				Keywords: []string{"readme", "doc", ".md"}},
			{Name: "tests_run", Weight: 0.05,
				Keywords: []string{"test", "passed"}},
			{Name: "quality_checks_passed", Weight: 0.05,
				Keywords: []string{"lint", "quality", "clean"}},
		},
	}
}

// Evaluator computes completion status from records and reports.
type Evaluator struct {
	profiles  map[string]Profile
	threshold float64
	log       *zap.Logger
}

// NewEvaluator creates an evaluator with the given completion threshold.
// The default build profile is pre-registered.
func NewEvaluator(threshold float64) *Evaluator {
	e := &Evaluator{
		profiles:  map[string]Profile{},
		threshold: threshold,
		log:       logging.L(logging.CategoryEval),
	}
	e.RegisterProfile(DefaultBuildProfile())
	return e
}

// RegisterProfile installs or replaces the criteria for a category.
func (e *Evaluator) RegisterProfile(p Profile) {
	e.profiles[p.Category] = p
}

// Evaluate recomputes the completion status for a requirement from the full
// record set. Reports are keyed by record ID.
func (e *Evaluator) Evaluate(
	req protocol.TaskRequirement,
	records []protocol.ExecutionRecord,
	reports map[string]protocol.HallucinationReport,
) protocol.CompletionStatus {
	profile, ok := e.profiles[req.Category]
	if !ok {
		// Unknown categories fall back to the build profile rather than
		// reporting vacuous completion.
		profile = e.profiles["build"]
	}

	status := protocol.CompletionStatus{Metrics: map[string]float64{}}
	score := 0.0
	criticalUnmet := false

	for _, crit := range profile.Criteria {
		if satisfied(crit, records, reports) {
			contribution := crit.Weight * 100
			score += contribution
			status.Metrics[crit.Name] = contribution
			continue
		}
		status.Metrics[crit.Name] = 0
		status.Unmet = append(status.Unmet, crit.Name)
		if crit.Critical {
			criticalUnmet = true
		}
	}
	sort.Strings(status.Unmet)

	status.Score = score
	status.Grade = grade(score)
	// A high score with a missing critical criterion is never complete.
	status.Satisfied = score >= e.threshold && !criticalUnmet

	e.log.Debug("completion evaluated",
		zap.String("category", req.Category),
		zap.Float64("score", score),
		zap.Bool("satisfied", status.Satisfied),
		zap.Strings("unmet", status.Unmet))
	return status
}

// satisfied reports whether any record provides positive evidence for the
// criterion. Evidence must come from verified artifacts or from an
// unflagged record; a flagged record's text claims count for nothing.
func satisfied(
	crit Criterion,
	records []protocol.ExecutionRecord,
	reports map[string]protocol.HallucinationReport,
) bool {
	for _, rec := range records {
		report, hasReport := reports[rec.ID]

		if crit.RequireArtifact {
			if !hasReport || len(report.VerifiedArtifacts) == 0 {
				continue
			}
			if matchesKeywords(crit, rec, report) {
				return true
			}
			continue
		}

		// Non-artifact criteria accept an unflagged successful record.
		if !rec.Success {
			continue
		}
		if hasReport && report.Flagged() && len(report.VerifiedArtifacts) == 0 {
			continue
		}
		if matchesKeywords(crit, rec, report) {
			return true
		}
	}
	return false
}

// matchesKeywords ties a record to a criterion by keyword. Empty keyword
// lists match unconditionally. Once the detector has flagged a record its
// prose no longer counts; only verified artifact names can tie it to a
// criterion.
func matchesKeywords(crit Criterion, rec protocol.ExecutionRecord, report protocol.HallucinationReport) bool {
	if len(crit.Keywords) == 0 {
		return true
	}
	var haystack string
	if !report.Flagged() {
		haystack = strings.ToLower(rec.Output)
	}
	for _, a := range report.VerifiedArtifacts {
		haystack += " " + strings.ToLower(a)
	}
	for _, kw := range crit.Keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// grade maps a score to the qualitative band.
func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
