package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirigent/internal/protocol"
)

func buildReq() protocol.TaskRequirement {
	return protocol.TaskRequirement{Category: "build", Description: "build an alu"}
}

func rec(id string, success bool, output string) protocol.ExecutionRecord {
	return protocol.ExecutionRecord{ID: id, Success: success, Output: output}
}

func reportWith(id string, artifacts ...string) protocol.HallucinationReport {
	return protocol.HallucinationReport{RecordID: id, VerifiedArtifacts: artifacts}
}

func TestEvaluateNoRecords(t *testing.T) {
	t.Parallel()

	status := NewEvaluator(80).Evaluate(buildReq(), nil, nil)
	assert.False(t, status.Satisfied)
	assert.InDelta(t, 0, status.Score, 1e-9)
	assert.Equal(t, "F", status.Grade)
	assert.Contains(t, status.Unmet, "produce_artifact")
}

// An unmet critical criterion vetoes completion even when the score clears
// the threshold.
func TestEvaluateCriticalCriterionVetoes(t *testing.T) {
	t.Parallel()

	records := []protocol.ExecutionRecord{
		rec("r1", true, "verification passed, simulation clean, tests passed, lint clean, wrote README.md doc"),
	}
	// Unflagged record, but no verified artifact anywhere: the soft
	// criteria accumulate score while the critical one stays unmet.
	reports := map[string]protocol.HallucinationReport{
		"r1": {RecordID: "r1", Unreliability: 0},
	}

	status := NewEvaluator(10).Evaluate(buildReq(), records, reports)
	assert.False(t, status.Satisfied, "critical produce_artifact is unmet")
	assert.Contains(t, status.Unmet, "produce_artifact")
}

func TestEvaluateSatisfiedBuild(t *testing.T) {
	t.Parallel()

	records := []protocol.ExecutionRecord{
		rec("r1", true, "wrote the module"),
		rec("r2", true, "ran testbench simulation, tests passed, lint quality clean"),
	}
	reports := map[string]protocol.HallucinationReport{
		"r1": reportWith("r1", "alu.v", "README.md"),
		"r2": reportWith("r2", "sim.log"),
	}

	status := NewEvaluator(80).Evaluate(buildReq(), records, reports)
	require.True(t, status.Satisfied, "unmet: %v", status.Unmet)
	assert.InDelta(t, 100, status.Score, 1e-9)
	assert.Equal(t, "A", status.Grade)
	assert.Empty(t, status.Unmet)
}

// A flagged record's text claims count for nothing; its verified artifacts
// still do.
func TestEvaluateFlaggedRecordTextIgnored(t *testing.T) {
	t.Parallel()

	records := []protocol.ExecutionRecord{
		rec("r1", true, "tests passed everywhere, trust me"),
	}
	reports := map[string]protocol.HallucinationReport{
		"r1": {RecordID: "r1", Unreliability: 0.4},
	}

	status := NewEvaluator(80).Evaluate(buildReq(), records, reports)
	assert.Contains(t, status.Unmet, "tests_run",
		"flagged record with no artifacts cannot evidence tests_run")
}

// A flagged record cannot ride its own prose into an artifact-backed
// criterion: an unrelated verified artifact plus a text claim is not
// evidence of verification.
func TestEvaluateFlaggedProseCannotBackArtifactCriterion(t *testing.T) {
	t.Parallel()

	records := []protocol.ExecutionRecord{
		rec("r1", true, "ran the testbench, full verification, simulation clean"),
	}
	reports := map[string]protocol.HallucinationReport{
		"r1": {RecordID: "r1", Unreliability: 0.3, VerifiedArtifacts: []string{"alu.v"}},
	}

	status := NewEvaluator(80).Evaluate(buildReq(), records, reports)
	assert.Contains(t, status.Unmet, "verification_performed",
		"flagged prose plus an unrelated artifact is not verification evidence")
	// The keywordless critical criterion still accepts the verified artifact.
	assert.NotContains(t, status.Unmet, "produce_artifact")
}

func TestEvaluateMetricsPerCriterion(t *testing.T) {
	t.Parallel()

	records := []protocol.ExecutionRecord{rec("r1", true, "wrote it")}
	reports := map[string]protocol.HallucinationReport{"r1": reportWith("r1", "alu.v")}

	status := NewEvaluator(80).Evaluate(buildReq(), records, reports)
	assert.InDelta(t, 40, status.Metrics["produce_artifact"], 1e-9)
	assert.InDelta(t, 0, status.Metrics["verification_performed"], 1e-9)
}

func TestEvaluateUnknownCategoryFallsBackToBuild(t *testing.T) {
	t.Parallel()

	status := NewEvaluator(80).Evaluate(
		protocol.TaskRequirement{Category: "mystery"}, nil, nil)
	assert.False(t, status.Satisfied)
	assert.Contains(t, status.Unmet, "produce_artifact")
}

func TestEvaluateCustomProfile(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(80)
	e.RegisterProfile(Profile{
		Category: "review",
		Criteria: []Criterion{
			{Name: "review_written", Weight: 1.0, Critical: true, Keywords: []string{"review"}},
		},
	})

	records := []protocol.ExecutionRecord{rec("r1", true, "posted the review")}
	status := e.Evaluate(protocol.TaskRequirement{Category: "review"}, records, nil)
	assert.True(t, status.Satisfied)
	assert.InDelta(t, 100, status.Score, 1e-9)
}

func TestGradeBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  string
	}{
		{95, "A"}, {90, "A"}, {85, "B"}, {80, "B"}, {75, "C"}, {65, "D"}, {10, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, grade(tt.score), "score %v", tt.score)
	}
}
