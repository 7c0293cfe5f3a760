package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		declared string
		want     float64
	}{
		{"exact", "name", "name", 1.0},
		{"exact case-insensitive", "Name", "name", 1.0},
		{"substring", "module_name", "name", 0.8},
		{"substring other direction", "name", "module_name", 0.8},
		{"empty incoming", "", "name", 0},
		{"empty declared", "name", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Similarity(tt.incoming, tt.declared), 1e-9)
		})
	}
}

func TestSimilarityTokenJaccard(t *testing.T) {
	t.Parallel()

	// {port, list} vs {port, decls}: one shared token out of three.
	got := Similarity("port_list", "port_decls")
	assert.InDelta(t, 1.0/3.0, got, 1e-9)
}

func TestSimilarityCharFallback(t *testing.T) {
	t.Parallel()

	// Single-token names fall through to character sets. A transposition
	// keeps the full set, so the score stays high.
	assert.InDelta(t, 1.0, Similarity("nmae", "name"), 1e-9)
}

func TestSimilarityOrderingIsSane(t *testing.T) {
	t.Parallel()

	// A clearly better candidate must outscore a clearly worse one.
	assert.Greater(t,
		Similarity("module_name", "name"),
		Similarity("module_name", "cycles"))
}
