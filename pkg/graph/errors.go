package graph

import (
	"errors"
	"fmt"
)

// Phase names an orchestrator phase for timing and error reporting.
type Phase string

const (
	PhaseNormalize    Phase = "normalize"
	PhaseSummarize    Phase = "summarize"
	PhaseSourceEnsure Phase = "source_ensure"
	PhaseExtraction   Phase = "extraction"
	PhaseResolution   Phase = "resolution"
	PhaseMentions     Phase = "mentions"
)

// AbortingError wraps a failure in a phase without which no meaningful
// partial result exists. The orchestrator stops the pipeline when one occurs.
type AbortingError struct {
	Phase Phase
	Err   error
}

func (e *AbortingError) Error() string {
	return fmt.Sprintf("phase %s aborted: %v", e.Phase, e.Err)
}

func (e *AbortingError) Unwrap() error { return e.Err }

// RecoverableError wraps a failure in a best-effort phase. The pipeline
// degrades to fewer entities or relationships and continues.
type RecoverableError struct {
	Phase Phase
	Err   error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// InvariantViolation marks a state the pipeline must never produce: a
// cross-user relationship, a missing provenance field, or a duplicate key
// surviving a re-resolve. It is always fatal to the operation that raised it.
type InvariantViolation struct {
	Msg string
	Err error
}

func (e *InvariantViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violation: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("invariant violation: %s", e.Msg)
}

func (e *InvariantViolation) Unwrap() error { return e.Err }

// IsInvariantViolation reports whether err is or wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// PhaseError is one entry of the diagnostics list an ingestion returns for
// its best-effort phases.
type PhaseError struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}
