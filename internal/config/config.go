// Package config holds all dirigent configuration: provider selection,
// coordination policy constants, execution limits and storage paths.
// Values load from YAML with environment overrides applied afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM configures the upstream text generator.
	LLM LLMConfig `yaml:"llm"`

	// Policy holds the tunable coordination constants.
	Policy PolicyConfig `yaml:"policy"`

	// Execution bounds worker invocations.
	Execution ExecutionConfig `yaml:"execution"`

	// Store configures session persistence.
	Store StoreConfig `yaml:"store"`

	// Logging controls log verbosity.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-generation backend. Durations are strings
// in the file ("2m", "30s") and resolved through the accessor methods.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // gemini, anthropic
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GetTimeout resolves the generator call deadline.
func (c LLMConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 2*time.Minute)
}

// PolicyConfig exposes the scoring and termination constants that were
// hand-tuned in the original design. Defaults carry the calibrated values;
// they are configuration, not code.
type PolicyConfig struct {
	// SimilarityThreshold is the minimum fuzzy field-match score the
	// adapter accepts when mapping incoming keys to contract keys.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// CompletionThreshold is the 0-100 score at or above which a session
	// may be reported complete (critical criteria permitting).
	CompletionThreshold float64 `yaml:"completion_threshold"`

	// MaxIterations bounds the coordination loop.
	MaxIterations int `yaml:"max_iterations"`
}

// ExecutionConfig bounds the EXECUTE state.
type ExecutionConfig struct {
	// InvocationTimeout is the per-worker-call deadline ("10m" style).
	InvocationTimeout string `yaml:"invocation_timeout"`

	// MaxParallelInvocations caps concurrent worker calls in one batch.
	MaxParallelInvocations int `yaml:"max_parallel_invocations"`
}

// GetInvocationTimeout resolves the per-worker-call deadline.
func (c ExecutionConfig) GetInvocationTimeout() time.Duration {
	return parseDuration(c.InvocationTimeout, 10*time.Minute)
}

// parseDuration resolves a duration string, falling back to the calibrated
// default on empty or malformed input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// StoreConfig configures the SQLite record store. Empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the zap root logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the configuration with calibrated defaults.
func Default() Config {
	return Config{
		Name: "dirigent",
		LLM: LLMConfig{
			Provider:  "gemini",
			Timeout:   "2m",
			MaxTokens: 8192,
		},
		Policy: PolicyConfig{
			SimilarityThreshold: 0.7,
			CompletionThreshold: 80,
			MaxIterations:       5,
		},
		Execution: ExecutionConfig{
			InvocationTimeout:      "10m",
			MaxParallelInvocations: 3,
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. A missing file is not an error: defaults plus env apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnvOverrides layers DIRIGENT_* environment variables over the
// current values. API keys also fall back to the provider-native names.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DIRIGENT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("DIRIGENT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DIRIGENT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if v := os.Getenv("DIRIGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Policy.MaxIterations = n
		}
	}
	if v := os.Getenv("DIRIGENT_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DIRIGENT_DEBUG"); v != "" {
		c.Logging.Debug = v == "1" || v == "true"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Policy.MaxIterations <= 0 {
		return fmt.Errorf("policy.max_iterations must be positive, got %d", c.Policy.MaxIterations)
	}
	if c.Policy.SimilarityThreshold < 0 || c.Policy.SimilarityThreshold > 1 {
		return fmt.Errorf("policy.similarity_threshold must be in [0,1], got %v", c.Policy.SimilarityThreshold)
	}
	if c.Policy.CompletionThreshold < 0 || c.Policy.CompletionThreshold > 100 {
		return fmt.Errorf("policy.completion_threshold must be in [0,100], got %v", c.Policy.CompletionThreshold)
	}
	if c.Execution.MaxParallelInvocations < 1 {
		c.Execution.MaxParallelInvocations = 1
	}
	return nil
}
