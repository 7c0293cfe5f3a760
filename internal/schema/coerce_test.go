package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirigent/internal/protocol"
)

func TestParsePortDecl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		decl      string
		wantName  string
		wantWidth int
		wantOK    bool
	}{
		{"clk", "clk", 1, true},
		{"  rst_n  ", "rst_n", 1, true},
		{"data [7:0]", "data", 8, true},
		{"data[7:0]", "data", 8, true},
		{"addr [ 0 : 3 ]", "addr", 4, true},
		{"q [15:8]", "q", 8, true},
		{"bad port", "", 0, false},
		{"[7:0]", "", 0, false},
		{"", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			t.Parallel()
			name, width, ok := parsePortDecl(tt.decl)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantName, name)
				assert.Equal(t, tt.wantWidth, width)
			}
		})
	}
}

func TestCoercePortListRejectsMixedGarbage(t *testing.T) {
	t.Parallel()

	_, ok := coercePortList([]any{"clk", float64(7)})
	assert.False(t, ok)

	_, ok = coercePortList("clk")
	assert.False(t, ok)
}

func TestCoerceKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  any
		kind   protocol.ParamKind
		want   any
		wantOK bool
	}{
		{"string passthrough", "x", protocol.KindString, "x", true},
		{"number to string", float64(8), protocol.KindString, "8", true},
		{"bool to string", true, protocol.KindString, "true", true},
		{"number passthrough", float64(3), protocol.KindNumber, float64(3), true},
		{"numeric string", " 42 ", protocol.KindNumber, float64(42), true},
		{"non-numeric string", "eight", protocol.KindNumber, nil, false},
		{"bool passthrough", false, protocol.KindBool, false, true},
		{"bool string", "true", protocol.KindBool, true, true},
		{"list passthrough", []any{"a"}, protocol.KindList, []any{"a"}, true},
		{"scalar is not a list", "a", protocol.KindList, nil, false},
		{"object passthrough", map[string]any{"k": "v"}, protocol.KindObject, map[string]any{"k": "v"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := coerceKind(tt.value, tt.kind)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCheckConstraints(t *testing.T) {
	t.Parallel()

	min, max := 1.0, 64.0

	tests := []struct {
		name   string
		value  any
		spec   protocol.ParamSpec
		passes bool
	}{
		{"pattern match", "alu_v2", protocol.ParamSpec{Pattern: `^[a-z][a-z0-9_]*$`}, true},
		{"pattern miss", "2alu", protocol.ParamSpec{Pattern: `^[a-z][a-z0-9_]*$`}, false},
		{"in range", float64(8), protocol.ParamSpec{Min: &min, Max: &max}, true},
		{"below min", float64(0), protocol.ParamSpec{Min: &min}, false},
		{"above max", float64(128), protocol.ParamSpec{Max: &max}, false},
		{"enum hit", "verilog", protocol.ParamSpec{Enum: []string{"verilog", "vhdl"}}, true},
		{"enum miss", "chisel", protocol.ParamSpec{Enum: []string{"verilog", "vhdl"}}, false},
		{"unconstrained", "anything", protocol.ParamSpec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			detail := checkConstraints(tt.value, tt.spec)
			if tt.passes {
				assert.Empty(t, detail)
			} else {
				assert.NotEmpty(t, detail)
			}
		})
	}
}
