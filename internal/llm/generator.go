// Package llm is the boundary to the upstream text generator. The engine
// sends a structured prompt -- task description, unmet-requirements context
// and the authoritative target/contract list -- and gets back one raw
// utterance per turn. The engine tolerates any text shape in the response;
// tolerance lives in the extractor, not here.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dirigent/internal/protocol"
)

// Prompt is one coordination turn's input to the generator.
type Prompt struct {
	// Task is the original request text.
	Task string

	// Unmet carries the unmet requirement names from the previous
	// iteration so the generator can target the gap instead of repeating
	// the whole task.
	Unmet []string

	// Targets is the authoritative list of currently available targets
	// with their parameter contracts.
	Targets []TargetInfo

	// Feedback carries per-turn corrective notes (extraction or
	// validation failures from the previous turn).
	Feedback []string
}

// TargetInfo pairs a target name with its contract for prompt rendering.
type TargetInfo struct {
	Name     string
	Contract protocol.ParameterContract
}

// Generator produces one raw utterance per coordination turn.
type Generator interface {
	NextUtterance(ctx context.Context, p Prompt) (protocol.RawUtterance, error)
}

// systemInstruction is the fixed framing sent with every turn.
const systemInstruction = `You are the planning component of a coordination engine.
Respond with exactly one JSON object of the form:
  {"target": "<target name>", "parameters": { ... }}
or, for several independent steps:
  {"directives": [{"target": "...", "parameters": { ... }}, ...]}
Use only the listed targets and their declared parameters. No prose outside the JSON.`

// Render builds the user-facing prompt text for one turn.
func (p Prompt) Render() string {
	var b strings.Builder

	b.WriteString("## Task\n")
	b.WriteString(p.Task)
	b.WriteString("\n")

	if len(p.Unmet) > 0 {
		b.WriteString("\n## Unmet Requirements From Previous Iterations\n")
		b.WriteString("Target these gaps; do not repeat work that already succeeded.\n")
		for _, u := range p.Unmet {
			fmt.Fprintf(&b, "- %s\n", u)
		}
	}

	if len(p.Feedback) > 0 {
		b.WriteString("\n## Corrections\n")
		for _, f := range p.Feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\n## Available Targets\n")
	for _, t := range p.Targets {
		fmt.Fprintf(&b, "### %s\n", t.Name)
		for _, spec := range t.Contract.Params {
			req := "optional"
			if spec.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "- %s (%s, %s)", spec.Name, spec.Kind, req)
			if len(spec.Enum) > 0 {
				data, _ := json.Marshal(spec.Enum)
				fmt.Fprintf(&b, " one of %s", data)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
