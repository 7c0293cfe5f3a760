// Package worker provides the built-in LLM-backed worker: a capability-
// bounded agent whose execution is itself one generator call with a
// persona prompt. Domain-specific workers (design, testbench, tooling)
// register over this base with their own personas and contracts; the
// coordination engine only ever sees the Invoker surface.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dirigent/internal/llm"
	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// reply is the structured result format workers are instructed to emit.
type reply struct {
	Success   bool     `json:"success"`
	Output    string   `json:"output"`
	Artifacts []string `json:"artifacts"`
}

// LLMWorker executes normalized directives by prompting a generator with a
// worker persona and parsing the structured reply.
type LLMWorker struct {
	profile protocol.WorkerProfile
	persona string
	gen     llm.Generator
	log     *zap.Logger
}

// NewLLMWorker builds a worker over the given generator.
func NewLLMWorker(profile protocol.WorkerProfile, persona string, gen llm.Generator) *LLMWorker {
	return &LLMWorker{
		profile: profile,
		persona: persona,
		gen:     gen,
		log:     logging.L(logging.CategoryWorker),
	}
}

// Profile returns the worker's registered profile.
func (w *LLMWorker) Profile() protocol.WorkerProfile { return w.profile }

// Execute runs one normalized directive. Failures become values on the
// record; the only returned error is a nil-generator programmer error.
func (w *LLMWorker) Execute(ctx context.Context, assignment protocol.TaskAssignment, directive protocol.DirectiveEnvelope) (protocol.ExecutionRecord, error) {
	if w.gen == nil {
		return protocol.ExecutionRecord{}, fmt.Errorf("worker %s has no generator", w.profile.ID)
	}

	rec := protocol.ExecutionRecord{
		ID:         uuid.NewString(),
		Assignment: assignment,
		Directive:  directive,
		StartedAt:  time.Now(),
	}

	params, _ := json.MarshalIndent(directive.Parameters, "", "  ")
	task := fmt.Sprintf(`%s

## Directive: %s
Parameters:
%s

Respond with exactly one JSON object: {"success": true|false, "output": "<what you did>", "artifacts": ["<paths you wrote>"]}.
List only artifacts you actually produced.`, w.persona, directive.Target, params)

	raw, err := w.gen.NextUtterance(ctx, llm.Prompt{Task: task})
	rec.FinishedAt = time.Now()
	if err != nil {
		kind := protocol.ErrorKindExecution
		if ctx.Err() != nil {
			kind = protocol.ErrorKindTimeout
		}
		rec.Failure = &protocol.Failure{Kind: kind, Detail: err.Error()}
		w.log.Warn("worker call failed",
			zap.String("worker", w.profile.ID),
			zap.String("target", directive.Target),
			zap.Error(err))
		return rec, nil
	}

	w.parseReply(string(raw), &rec)
	return rec, nil
}

// parseReply fills the record from the worker's response, degrading to
// plain text output when the reply is not the requested JSON shape.
func (w *LLMWorker) parseReply(raw string, rec *protocol.ExecutionRecord) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var rep reply
	if err := json.Unmarshal([]byte(cleaned), &rep); err != nil {
		// Free-text reply: keep it as output, claim nothing.
		rec.Output = cleaned
		rec.Success = false
		return
	}

	rec.Success = rep.Success
	rec.Output = rep.Output
	rec.ClaimedArtifacts = rep.Artifacts
}
