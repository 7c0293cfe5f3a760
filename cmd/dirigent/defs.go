package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dirigent/internal/protocol"
)

// WorkerDef pairs a worker profile with its persona prompt.
type WorkerDef struct {
	Profile protocol.WorkerProfile `yaml:",inline"`
	Persona string                 `yaml:"persona"`
}

// TargetDef declares one directive target: its parameter contract and the
// requirement used to route it.
type TargetDef struct {
	Name        string                     `yaml:"name"`
	Contract    protocol.ParameterContract `yaml:"contract"`
	Requirement protocol.TaskRequirement   `yaml:"requirement"`
	Renames     map[string]string          `yaml:"renames,omitempty"`
}

// Definitions is the workers file: the full worker fleet and target surface
// for a deployment.
type Definitions struct {
	Workers []WorkerDef `yaml:"workers"`
	Targets []TargetDef `yaml:"targets"`
}

// loadDefinitions reads and sanity-checks the workers file.
func loadDefinitions(path string) (Definitions, error) {
	var defs Definitions

	data, err := os.ReadFile(path)
	if err != nil {
		return defs, fmt.Errorf("read definitions: %w", err)
	}
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return defs, fmt.Errorf("parse definitions: %w", err)
	}

	if len(defs.Workers) == 0 {
		return defs, fmt.Errorf("definitions file %q declares no workers", path)
	}
	if len(defs.Targets) == 0 {
		return defs, fmt.Errorf("definitions file %q declares no targets", path)
	}
	for i, w := range defs.Workers {
		if w.Profile.ID == "" {
			return defs, fmt.Errorf("worker %d has no id", i)
		}
	}
	for i, t := range defs.Targets {
		if t.Name == "" {
			return defs, fmt.Errorf("target %d has no name", i)
		}
	}
	return defs, nil
}
