package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirigent/internal/protocol"
)

func buildRegistry(t *testing.T, workers ...protocol.WorkerProfile) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, w := range workers {
		require.NoError(t, reg.Register(w))
	}
	return reg
}

func TestRouteSingleSurvivorFullConfidence(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{ID: "builder", Live: true, Categories: []string{"build"}, MaxTier: 3, Capabilities: []string{"write_files"}},
		protocol.WorkerProfile{ID: "tester", Live: true, Categories: []string{"verify"}, MaxTier: 2, Capabilities: []string{"test"}},
	)

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category:             "build",
		Tier:                 2,
		RequiredCapabilities: []string{"write_files"},
	})
	require.NoError(t, err)
	assert.Equal(t, "builder", got.Worker.ID)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
	assert.Empty(t, got.Alternatives)
}

func TestRouteNoCapableWorkerNamesConstraint(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{ID: "a", Live: true, Categories: []string{"build"}, MaxTier: 1},
	)
	router := NewRouter(reg)

	tests := []struct {
		name       string
		req        protocol.TaskRequirement
		constraint string
	}{
		{
			name:       "category",
			req:        protocol.TaskRequirement{Category: "deploy", Tier: 1},
			constraint: `task category "deploy"`,
		},
		{
			name:       "tier",
			req:        protocol.TaskRequirement{Category: "build", Tier: 3},
			constraint: "complexity tier 3",
		},
		{
			name:       "capabilities",
			req:        protocol.TaskRequirement{Category: "build", Tier: 1, RequiredCapabilities: []string{"simulate"}},
			constraint: "required capabilities [simulate]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := router.Route(tt.req)
			require.Error(t, err)

			var ncw *protocol.NoCapableWorkerError
			require.True(t, errors.As(err, &ncw))
			assert.Equal(t, tt.constraint, ncw.Constraint)
		})
	}
}

func TestRouteDeadWorkersExcluded(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{ID: "a", Live: false, Categories: []string{"build"}, MaxTier: 3},
	)
	_, err := NewRouter(reg).Route(protocol.TaskRequirement{Category: "build", Tier: 1})
	require.Error(t, err)

	var ncw *protocol.NoCapableWorkerError
	require.True(t, errors.As(err, &ncw))
	assert.Equal(t, "liveness", ncw.Constraint)
}

// A specialization tag matching the task category must break an otherwise
// symmetrical two-worker tie.
func TestRouteSpecializationBreaksTie(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{
			ID: "generalist", Live: true, Categories: []string{"rtl"}, MaxTier: 2,
			Capabilities: []string{"write_files"},
		},
		protocol.WorkerProfile{
			ID: "specialist", Live: true, Categories: []string{"rtl"}, MaxTier: 2,
			Capabilities:    []string{"write_files"},
			Specializations: []string{"rtl"},
		},
	)

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category:             "rtl",
		Tier:                 2,
		RequiredCapabilities: []string{"write_files"},
	})
	require.NoError(t, err)
	assert.Equal(t, "specialist", got.Worker.ID)
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, "generalist", got.Alternatives[0].WorkerID)
	assert.Greater(t, got.Confidence, got.Alternatives[0].Score)
}

func TestRouteExactTieKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	twin := func(id string) protocol.WorkerProfile {
		return protocol.WorkerProfile{
			ID: id, Live: true, Categories: []string{"build"}, MaxTier: 2,
			Capabilities: []string{"write_files"},
		}
	}
	reg := buildRegistry(t, twin("first"), twin("second"))

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category: "build", Tier: 2, RequiredCapabilities: []string{"write_files"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", got.Worker.ID)
}

// Identical inputs must produce identical assignments, every time.
func TestRouteDeterministic(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{ID: "a", Live: true, Categories: []string{"build"}, MaxTier: 3, Capabilities: []string{"write_files", "synthesize"}},
		protocol.WorkerProfile{ID: "b", Live: true, Categories: []string{"build"}, MaxTier: 2, Capabilities: []string{"write_files"}},
		protocol.WorkerProfile{ID: "c", Live: true, Categories: []string{"build"}, MaxTier: 2, Capabilities: []string{"write_files", "test", "verify"}},
	)
	router := NewRouter(reg)
	req := protocol.TaskRequirement{
		Category:             "build",
		Tier:                 2,
		RequiredCapabilities: []string{"write_files"},
		OptionalCapabilities: []string{"test"},
	}

	first, err := router.Route(req)
	require.NoError(t, err)
	for range 50 {
		again, err := router.Route(req)
		require.NoError(t, err)
		assert.Equal(t, first.Worker.ID, again.Worker.ID)
		assert.Equal(t, first.Alternatives, again.Alternatives)
	}
}

func TestRouteOptionalCapabilitiesRaiseScore(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t,
		protocol.WorkerProfile{ID: "plain", Live: true, Categories: []string{"build"}, MaxTier: 2, Capabilities: []string{"write_files"}},
		protocol.WorkerProfile{ID: "extra", Live: true, Categories: []string{"build"}, MaxTier: 2, Capabilities: []string{"write_files", "test"}},
	)

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category:             "build",
		Tier:                 2,
		RequiredCapabilities: []string{"write_files"},
		OptionalCapabilities: []string{"test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "extra", got.Worker.ID)
}

func TestBoundaryConflictWarnings(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t, protocol.WorkerProfile{
		ID: "builder", Live: true, Categories: []string{"build"}, MaxTier: 2,
		Prohibitions: []string{"deployment"},
	})

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category:    "build",
		Tier:        1,
		Description: "build the module and deploy it to production",
	})
	require.NoError(t, err)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "deployment", got.Warnings[0].Prohibition)
	assert.Equal(t, "deploy", got.Warnings[0].Keyword)
}

func TestBoundaryConflictAbsentWhenDescriptionClean(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t, protocol.WorkerProfile{
		ID: "builder", Live: true, Categories: []string{"build"}, MaxTier: 2,
		Prohibitions: []string{"deployment"},
	})

	got, err := NewRouter(reg).Route(protocol.TaskRequirement{
		Category:    "build",
		Tier:        1,
		Description: "build an 8-bit counter",
	})
	require.NoError(t, err)
	assert.Empty(t, got.Warnings)
}
