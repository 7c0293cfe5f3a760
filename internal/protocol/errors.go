package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures recorded on execution records and session
// outcomes. Kinds are stable strings so they survive persistence.
type ErrorKind string

const (
	ErrorKindExtractionEmpty  ErrorKind = "extraction_empty"
	ErrorKindValidationFailed ErrorKind = "validation_failed"
	ErrorKindNoCapableWorker  ErrorKind = "no_capable_worker"
	ErrorKindTimeout          ErrorKind = "execution_timeout"
	ErrorKindExecution        ErrorKind = "execution_error"
	ErrorKindIterationBound   ErrorKind = "iteration_bound_exceeded"
)

// ErrExtractionEmpty marks a turn that yielded no directive. Recoverable:
// the loop injects corrective context into the next turn.
var ErrExtractionEmpty = errors.New("no directive found in utterance")

// ErrIterationBound marks a session that exhausted its iteration budget.
// Always terminates the session as ESCALATE, never raised past it.
var ErrIterationBound = errors.New("iteration bound exceeded")

// NoCapableWorkerError names the filter constraint that eliminated the last
// candidate worker for a requirement.
type NoCapableWorkerError struct {
	Category   string
	Constraint string
}

func (e *NoCapableWorkerError) Error() string {
	return fmt.Sprintf("no capable worker for category %q: unsatisfied constraint %q", e.Category, e.Constraint)
}

// ValidationFailedError carries the field names an envelope is missing or
// violating after the full adaptation pipeline ran.
type ValidationFailedError struct {
	Target string
	Fields []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed for target %q: fields %v", e.Target, e.Fields)
}

// TimeoutError marks a worker invocation that exceeded its deadline.
type TimeoutError struct {
	WorkerID string
	Detail   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker %s timed out: %s", e.WorkerID, e.Detail)
}
