package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyValues(t *testing.T) {
	cfg := Default()
	assert.InDelta(t, 0.7, cfg.Policy.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 80, cfg.Policy.CompletionThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Policy.MaxIterations)
	assert.Equal(t, 3, cfg.Execution.MaxParallelInvocations)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Policy.MaxIterations)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: testrun
llm:
  provider: anthropic
  timeout: 30s
policy:
  max_iterations: 7
execution:
  invocation_timeout: 1m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testrun", cfg.Name)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.GetTimeout())
	assert.Equal(t, 7, cfg.Policy.MaxIterations)
	assert.Equal(t, time.Minute, cfg.Execution.GetInvocationTimeout())
	// Untouched values keep their defaults.
	assert.InDelta(t, 0.7, cfg.Policy.SimilarityThreshold, 1e-9)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DIRIGENT_LLM_PROVIDER", "anthropic")
	t.Setenv("DIRIGENT_MAX_ITERATIONS", "9")
	t.Setenv("DIRIGENT_LLM_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 9, cfg.Policy.MaxIterations)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestDurationFallbacks(t *testing.T) {
	assert.Equal(t, 2*time.Minute, LLMConfig{}.GetTimeout())
	assert.Equal(t, 2*time.Minute, LLMConfig{Timeout: "not-a-duration"}.GetTimeout())
	assert.Equal(t, 10*time.Minute, ExecutionConfig{InvocationTimeout: "-5s"}.GetInvocationTimeout())
	assert.Equal(t, 45*time.Second, ExecutionConfig{InvocationTimeout: "45s"}.GetInvocationTimeout())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Policy.MaxIterations = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Policy.SimilarityThreshold = 1.5
	assert.Error(t, bad.Validate())

	fixed := Default()
	fixed.Execution.MaxParallelInvocations = 0
	require.NoError(t, fixed.Validate())
	assert.Equal(t, 1, fixed.Execution.MaxParallelInvocations)
}
