package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirigent/internal/protocol"
)

func writeModuleContract() protocol.ParameterContract {
	min := 1.0
	return protocol.ParameterContract{
		Target: "write_module",
		Params: []protocol.ParamSpec{
			{Name: "name", Kind: protocol.KindString, Required: true, Inferable: true},
			{Name: "ports", Kind: protocol.KindList, Shape: protocol.ShapePortList},
			{Name: "body", Kind: protocol.KindString, Required: true},
			{Name: "width", Kind: protocol.KindNumber, Min: &min},
		},
	}
}

func newTestAdapter() *Adapter {
	a := NewAdapter(0.7)
	a.RegisterContract(writeModuleContract())
	a.RegisterTargetRenames("write_module", map[string]string{"module_name": "name"})
	return a
}

func TestNormalizeUnknownTarget(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target:     "no_such_target",
		Parameters: map[string]any{},
	})
	require.False(t, res.Valid())
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "unknown_target", res.Violations[0].Rule)
}

func TestNormalizeRenameAndFuzzy(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"module_name": "alu",        // declared rename
			"bodyy":       "module alu", // fuzzy: substring of nothing, chars close to body
		},
	})
	require.True(t, res.Valid(), "violations: %v", res.Violations)
	assert.Equal(t, "alu", res.Envelope.Parameters["name"])
	assert.Equal(t, "module alu", res.Envelope.Parameters["body"])
	assert.NotContains(t, res.Envelope.Parameters, "module_name")
	assert.NotContains(t, res.Envelope.Parameters, "bodyy")
}

func TestNormalizeMissingRequiredNotInferable(t *testing.T) {
	t.Parallel()

	// body is required and not inferable; name is inferable and zero-fills.
	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target:     "write_module",
		Parameters: map[string]any{},
	})
	require.False(t, res.Valid())
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "body", res.Violations[0].Field)
	assert.Equal(t, "missing_required", res.Violations[0].Rule)
	assert.Equal(t, []string{"body"}, res.ViolatedFields())

	// The inferable field was still filled.
	assert.Equal(t, "", res.Envelope.Parameters["name"])
}

func TestNormalizeInferenceRule(t *testing.T) {
	t.Parallel()

	a := newTestAdapter()
	a.RegisterInference("name", InferNameFrom("body"))

	res := a.Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"body": "module counter(input clk); endmodule",
		},
	})
	require.True(t, res.Valid(), "violations: %v", res.Violations)
	assert.Equal(t, "counter", res.Envelope.Parameters["name"])
}

func TestNormalizePortListCoercion(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"name":  "alu",
			"body":  "...",
			"ports": []any{"clk", "data [7:0]", "addr [0:3]"},
		},
	})
	require.True(t, res.Valid(), "violations: %v", res.Violations)

	want := []any{
		map[string]any{"name": "clk", "width": float64(1)},
		map[string]any{"name": "data", "width": float64(8)},
		map[string]any{"name": "addr", "width": float64(4)},
	}
	if diff := cmp.Diff(want, res.Envelope.Parameters["ports"]); diff != "" {
		t.Errorf("ports mismatch (-want +got):\n%s", diff)
	}
}

// Normalizing an already-normalized envelope must change nothing.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestAdapter()
	first := a.Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"module_name": "alu",
			"body":        "module alu; endmodule",
			"ports":       []any{"clk", "q [3:0]"},
			"width":       "8",
		},
	})
	require.True(t, first.Valid(), "violations: %v", first.Violations)

	second := a.Normalize(first.Envelope)
	require.True(t, second.Valid(), "violations: %v", second.Violations)
	assert.Empty(t, second.Log, "second pass must not transform anything")
	if diff := cmp.Diff(first.Envelope.Parameters, second.Envelope.Parameters); diff != "" {
		t.Errorf("parameters changed on second pass (-first +second):\n%s", diff)
	}
}

func TestNormalizeConstraints(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"name":  "alu",
			"body":  "...",
			"width": float64(0), // below min 1
		},
	})
	require.False(t, res.Valid())
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "width", res.Violations[0].Field)
	assert.Equal(t, "constraint", res.Violations[0].Rule)
}

// Values introduced by defaults, inference and zero-fill pass through the
// same constraint checks as extracted ones.
func TestNormalizeChecksFilledValues(t *testing.T) {
	t.Parallel()

	min := 200.0
	a := NewAdapter(0.7)
	a.RegisterContract(protocol.ParameterContract{
		Target: "run_simulation",
		Params: []protocol.ParamSpec{
			{Name: "name", Kind: protocol.KindString, Required: true, Inferable: true,
				Pattern: "^[a-z]+$"},
			{Name: "cycles", Kind: protocol.KindNumber, Default: 100.0, Min: &min},
		},
	})

	res := a.Normalize(protocol.DirectiveEnvelope{
		Target:     "run_simulation",
		Parameters: map[string]any{},
	})
	require.False(t, res.Valid(), "zero-filled name and defaulted cycles both break constraints")
	require.Len(t, res.Violations, 2)
	for _, v := range res.Violations {
		assert.Equal(t, "constraint", v.Rule)
	}
	assert.ElementsMatch(t, []string{"name", "cycles"}, res.ViolatedFields())

	// A second pass over the output reports the same violations, not new ones.
	second := a.Normalize(res.Envelope)
	assert.Equal(t, res.Violations, second.Violations)
}

// Port records arriving without a width get it filled on a copy; the
// caller's envelope keeps its original nested maps.
func TestNormalizePortRecordInputNotMutated(t *testing.T) {
	t.Parallel()

	port := map[string]any{"name": "clk"}
	in := protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"name":  "alu",
			"body":  "...",
			"ports": []any{port},
		},
	}
	res := newTestAdapter().Normalize(in)
	require.True(t, res.Valid(), "violations: %v", res.Violations)

	assert.NotContains(t, port, "width", "input port record was mutated")
	got := res.Envelope.Parameters["ports"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), got["width"])
}

func TestNormalizeDropsUnknownFields(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"name":       "alu",
			"body":       "...",
			"confidence": 0.99, // generator chatter, no contract home
		},
	})
	require.True(t, res.Valid(), "violations: %v", res.Violations)
	assert.NotContains(t, res.Envelope.Parameters, "confidence")
	assert.NotEmpty(t, res.Warnings)
}

func TestNormalizeFuzzyBelowThresholdLeavesKey(t *testing.T) {
	t.Parallel()

	res := newTestAdapter().Normalize(protocol.DirectiveEnvelope{
		Target: "write_module",
		Parameters: map[string]any{
			"name":      "alu",
			"body":      "...",
			"zzqq_blob": "noise", // matches nothing at 0.7
		},
	})
	// Unmatched key survives fuzzy matching and is dropped by the
	// unknown-field policy instead.
	require.True(t, res.Valid(), "violations: %v", res.Violations)
	assert.NotContains(t, res.Envelope.Parameters, "zzqq_blob")
	assert.Contains(t, res.Warnings[0], "zzqq_blob")
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := protocol.DirectiveEnvelope{
		Target:     "write_module",
		Parameters: map[string]any{"module_name": "alu", "body": "..."},
	}
	newTestAdapter().Normalize(in)
	assert.Equal(t, "alu", in.Parameters["module_name"], "input envelope was mutated")
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	def := 100.0
	a := NewAdapter(0.7)
	a.RegisterContract(protocol.ParameterContract{
		Target: "run_simulation",
		Params: []protocol.ParamSpec{
			{Name: "module", Kind: protocol.KindString, Required: true},
			{Name: "cycles", Kind: protocol.KindNumber, Default: def},
		},
	})

	res := a.Normalize(protocol.DirectiveEnvelope{
		Target:     "run_simulation",
		Parameters: map[string]any{"module": "alu"},
	})
	require.True(t, res.Valid(), "violations: %v", res.Violations)
	assert.Equal(t, def, res.Envelope.Parameters["cycles"])
}
