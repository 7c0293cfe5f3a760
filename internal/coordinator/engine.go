// Package coordinator drives the coordination loop: it prompts the
// generator, extracts and normalizes directives, routes them to workers,
// executes the batch, audits the results and evaluates completion, retrying
// with corrective context until the task is satisfied or the iteration
// bound forces escalation.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dirigent/internal/completion"
	"dirigent/internal/config"
	"dirigent/internal/extract"
	"dirigent/internal/llm"
	"dirigent/internal/logging"
	"dirigent/internal/observe"
	"dirigent/internal/protocol"
	"dirigent/internal/registry"
	"dirigent/internal/schema"
	"dirigent/internal/store"
	"dirigent/internal/tracking"
)

// State names one phase of the coordination loop.
type State string

const (
	// StateStart is the zero State of a session that has not run yet.
	StateStart    State = ""
	StateAnalyze  State = "ANALYZE"
	StateAssign   State = "ASSIGN"
	StateExecute  State = "EXECUTE"
	StateEvaluate State = "EVALUATE"
	StateRetry    State = "RETRY"
	StateDone     State = "DONE"
	StateEscalate State = "ESCALATE"
)

// transitions is the legal edge set of the coordination machine. DONE and
// ESCALATE are terminal: no edge leaves them, so a finished session cannot
// iterate again. ESCALATE is reachable from every live state because
// cancellation can land at any point of an iteration.
var transitions = map[State][]State{
	StateStart:    {StateAnalyze, StateEscalate},
	StateAnalyze:  {StateAssign, StateEvaluate, StateEscalate},
	StateAssign:   {StateExecute, StateEvaluate, StateEscalate},
	StateExecute:  {StateEvaluate, StateEscalate},
	StateEvaluate: {StateDone, StateRetry, StateEscalate},
	StateRetry:    {StateAnalyze, StateEscalate},
	StateDone:     {},
	StateEscalate: {},
}

// CanTransition reports whether next is a legal successor of s.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the machine can never leave s.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

// Outcome is the terminal result of a session.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeEscalated Outcome = "escalated"
)

// Invoker executes one assigned directive. worker.LLMWorker satisfies this;
// tests substitute stubs.
type Invoker interface {
	Execute(ctx context.Context, assignment protocol.TaskAssignment, directive protocol.DirectiveEnvelope) (protocol.ExecutionRecord, error)
}

// Binding ties a directive target to its parameter contract and the routing
// requirement used to pick a worker for it.
type Binding struct {
	Contract    protocol.ParameterContract
	Requirement protocol.TaskRequirement
}

// Session accumulates everything one coordination run produced. Escalation
// hands the whole session to the caller, not just an error.
type Session struct {
	ID          string
	Requirement protocol.TaskRequirement
	State       State
	Outcome     Outcome
	Iterations  int
	Records     []protocol.ExecutionRecord
	Reports     map[string]protocol.HallucinationReport
	Status      protocol.CompletionStatus
}

// Engine wires the pipeline stages together and owns the loop policy.
type Engine struct {
	cfg       config.Config
	gen       llm.Generator
	extractor *extract.Extractor
	adapter   *schema.Adapter
	reg       *registry.Registry
	router    *registry.Router
	detector  *tracking.Detector
	evaluator *completion.Evaluator
	store     *store.RecordStore

	invokers  map[string]Invoker
	bindings  map[string]Binding
	bindOrder []string

	log *zap.Logger
}

// NewEngine builds an engine from configuration. The store may be nil to
// disable persistence.
func NewEngine(cfg config.Config, gen llm.Generator, obs observe.Observer, st *store.RecordStore) *Engine {
	reg := registry.NewRegistry()
	return &Engine{
		cfg:       cfg,
		gen:       gen,
		extractor: extract.New(),
		adapter:   schema.NewAdapter(cfg.Policy.SimilarityThreshold),
		reg:       reg,
		router:    registry.NewRouter(reg),
		detector:  tracking.NewDetector(obs),
		evaluator: completion.NewEvaluator(cfg.Policy.CompletionThreshold),
		store:     st,
		invokers:  map[string]Invoker{},
		bindings:  map[string]Binding{},
		log:       logging.L(logging.CategoryLoop),
	}
}

// RegisterWorker adds a worker profile and its invoker. Registration happens
// before Run; only liveness changes afterwards.
func (e *Engine) RegisterWorker(profile protocol.WorkerProfile, inv Invoker) error {
	if err := e.reg.Register(profile); err != nil {
		return err
	}
	e.invokers[profile.ID] = inv
	return nil
}

// BindTarget declares a directive target: its contract for normalization and
// the requirement template used to route it.
func (e *Engine) BindTarget(target string, contract protocol.ParameterContract, req protocol.TaskRequirement) {
	contract.Target = target
	e.adapter.RegisterContract(contract)
	if _, exists := e.bindings[target]; !exists {
		e.bindOrder = append(e.bindOrder, target)
	}
	e.bindings[target] = Binding{Contract: contract, Requirement: req}
}

// Adapter exposes the parameter adapter for rename and inference
// registration.
func (e *Engine) Adapter() *schema.Adapter { return e.adapter }

// Registry exposes the worker registry for liveness control.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Evaluator exposes the completion evaluator for custom criteria profiles.
func (e *Engine) Evaluator() *completion.Evaluator { return e.evaluator }

type invocation struct {
	assignment protocol.TaskAssignment
	directive  protocol.DirectiveEnvelope
}

// Run executes one coordination session for the given requirement. It
// always returns the session; the error is non-nil when the session ended
// in escalation (iteration bound or cancellation).
func (e *Engine) Run(ctx context.Context, req protocol.TaskRequirement) (*Session, error) {
	sess := &Session{
		ID:          uuid.NewString(),
		Requirement: req,
		Reports:     map[string]protocol.HallucinationReport{},
	}
	e.log.Info("session started",
		zap.String("session", sess.ID),
		zap.String("category", req.Category),
		zap.Int("max_iterations", e.cfg.Policy.MaxIterations))

	var unmet []string
	var feedback []string

	for sess.Iterations < e.cfg.Policy.MaxIterations {
		if ctx.Err() != nil {
			return e.escalate(sess, ctx.Err())
		}
		sess.Iterations++
		e.transition(sess, StateAnalyze)

		genCtx, cancelGen := context.WithTimeout(ctx, e.cfg.LLM.GetTimeout())
		utterance, err := e.gen.NextUtterance(genCtx, llm.Prompt{
			Task:     req.Description,
			Unmet:    unmet,
			Targets:  e.targetInfos(),
			Feedback: feedback,
		})
		cancelGen()
		feedback = nil
		if err != nil {
			if ctx.Err() != nil {
				return e.escalate(sess, ctx.Err())
			}
			feedback = append(feedback, fmt.Sprintf("generator error: %v", err))
		}

		var batch []invocation
		if err == nil {
			result := e.extractor.Extract(utterance)
			if result.Empty() {
				e.log.Warn("extraction empty",
					zap.String("session", sess.ID),
					zap.Int("iteration", sess.Iterations))
				feedback = append(feedback,
					"no directive could be extracted from the last response; reply with the JSON directive format only")
			} else {
				e.transition(sess, StateAssign)
				batch, feedback = e.assign(result.Envelopes, feedback)
			}
		}

		if len(batch) > 0 {
			e.transition(sess, StateExecute)
			records := e.executeBatch(ctx, batch)
			sess.Records = append(sess.Records, records...)

			for _, rec := range records {
				report := e.detector.Inspect(ctx, rec)
				sess.Reports[rec.ID] = report
				e.persistRecord(sess.ID, rec, report)

				if rec.Failure != nil {
					feedback = append(feedback, fmt.Sprintf(
						"directive %q failed (%s): %s",
						rec.Directive.Target, rec.Failure.Kind, rec.Failure.Detail))
				}
				if report.Flagged() {
					feedback = append(feedback, fmt.Sprintf(
						"worker %q output was unreliable (%.2f): %v",
						rec.Assignment.Worker.ID, report.Unreliability, report.UnverifiableClaims))
				}
			}
		}

		// Cancellation during the batch must not let accumulated evidence
		// finish the session as done.
		if ctx.Err() != nil {
			return e.escalate(sess, ctx.Err())
		}

		e.transition(sess, StateEvaluate)
		sess.Status = e.evaluator.Evaluate(req, sess.Records, sess.Reports)
		unmet = sess.Status.Unmet
		e.persistSession(sess, "running")

		if sess.Status.Satisfied {
			e.transition(sess, StateDone)
			sess.Outcome = OutcomeDone
			e.persistSession(sess, string(OutcomeDone))
			e.log.Info("session complete",
				zap.String("session", sess.ID),
				zap.Int("iterations", sess.Iterations),
				zap.Float64("score", sess.Status.Score))
			return sess, nil
		}
		e.transition(sess, StateRetry)
	}

	return e.escalate(sess, fmt.Errorf("%d iterations spent: %w",
		sess.Iterations, protocol.ErrIterationBound))
}

// assign normalizes and routes each extracted envelope. Invalid or
// unroutable directives become corrective feedback instead of invocations.
func (e *Engine) assign(envelopes []protocol.DirectiveEnvelope, feedback []string) ([]invocation, []string) {
	var batch []invocation
	for _, env := range envelopes {
		norm := e.adapter.Normalize(env)
		if !norm.Valid() {
			vErr := &protocol.ValidationFailedError{
				Target: env.Target,
				Fields: norm.ViolatedFields(),
			}
			e.log.Warn("directive rejected",
				zap.String("target", env.Target),
				zap.Strings("fields", vErr.Fields))
			feedback = append(feedback, vErr.Error())
			continue
		}

		binding, ok := e.bindings[norm.Envelope.Target]
		if !ok {
			feedback = append(feedback, fmt.Sprintf("target %q has no worker binding", norm.Envelope.Target))
			continue
		}
		assignment, err := e.router.Route(binding.Requirement)
		if err != nil {
			feedback = append(feedback, err.Error())
			continue
		}
		for _, warn := range assignment.Warnings {
			e.log.Warn("boundary conflict",
				zap.String("worker", assignment.Worker.ID),
				zap.String("prohibition", warn.Prohibition),
				zap.String("keyword", warn.Keyword))
		}
		batch = append(batch, invocation{assignment: assignment, directive: norm.Envelope})
	}
	return batch, feedback
}

// executeBatch runs the invocations concurrently under the configured
// parallelism cap and per-call timeout. One invocation failing never
// cancels its siblings; the batch always joins before evaluation.
func (e *Engine) executeBatch(ctx context.Context, batch []invocation) []protocol.ExecutionRecord {
	records := make([]protocol.ExecutionRecord, len(batch))

	limit := e.cfg.Execution.MaxParallelInvocations
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, inv := range batch {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.cfg.Execution.GetInvocationTimeout())
			defer cancel()
			records[i] = e.invoke(callCtx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// invoke calls the worker bound to the assignment and converts transport
// errors into failure records.
func (e *Engine) invoke(ctx context.Context, inv invocation) protocol.ExecutionRecord {
	worker, ok := e.invokers[inv.assignment.Worker.ID]
	if !ok {
		return failureRecord(inv, protocol.ErrorKindExecution,
			fmt.Sprintf("worker %q registered without invoker", inv.assignment.Worker.ID))
	}

	rec, err := worker.Execute(ctx, inv.assignment, inv.directive)
	if err != nil {
		kind := protocol.ErrorKindExecution
		if ctx.Err() != nil {
			kind = protocol.ErrorKindTimeout
		}
		return failureRecord(inv, kind, err.Error())
	}
	return rec
}

func failureRecord(inv invocation, kind protocol.ErrorKind, detail string) protocol.ExecutionRecord {
	now := time.Now()
	return protocol.ExecutionRecord{
		ID:         uuid.NewString(),
		Assignment: inv.assignment,
		Directive:  inv.directive,
		StartedAt:  now,
		FinishedAt: now,
		Success:    false,
		Failure:    &protocol.Failure{Kind: kind, Detail: detail},
	}
}

// escalate finalizes the session with everything accumulated so far.
func (e *Engine) escalate(sess *Session, cause error) (*Session, error) {
	e.transition(sess, StateEscalate)
	sess.Outcome = OutcomeEscalated
	sess.Status = e.evaluator.Evaluate(sess.Requirement, sess.Records, sess.Reports)
	e.persistSession(sess, string(OutcomeEscalated))
	e.log.Warn("session escalated",
		zap.String("session", sess.ID),
		zap.Int("iterations", sess.Iterations),
		zap.Int("records", len(sess.Records)),
		zap.Error(cause))
	return sess, cause
}

func (e *Engine) targetInfos() []llm.TargetInfo {
	infos := make([]llm.TargetInfo, 0, len(e.bindOrder))
	for _, target := range e.bindOrder {
		infos = append(infos, llm.TargetInfo{
			Name:     target,
			Contract: e.bindings[target].Contract,
		})
	}
	return infos
}

func (e *Engine) transition(sess *Session, next State) {
	if !sess.State.CanTransition(next) {
		e.log.Error("illegal state transition",
			zap.String("session", sess.ID),
			zap.String("from", string(sess.State)),
			zap.String("to", string(next)))
	}
	sess.State = next
	e.log.Debug("state transition",
		zap.String("session", sess.ID),
		zap.Int("iteration", sess.Iterations),
		zap.String("state", string(next)))
}

func (e *Engine) persistRecord(sessionID string, rec protocol.ExecutionRecord, rep protocol.HallucinationReport) {
	if err := e.store.SaveRecord(sessionID, rec); err != nil {
		e.log.Warn("record persistence failed", zap.Error(err))
	}
	if err := e.store.SaveReport(sessionID, rep); err != nil {
		e.log.Warn("report persistence failed", zap.Error(err))
	}
}

func (e *Engine) persistSession(sess *Session, outcome string) {
	err := e.store.SaveSession(sess.ID, sess.Requirement.Description, outcome, sess.Iterations, sess.Status)
	if err != nil {
		e.log.Warn("session persistence failed", zap.Error(err))
	}
}
