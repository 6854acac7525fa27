package bootstrap

import (
	"fmt"
	"strings"
)

// PhaseError wraps the fatal error that stopped a run.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("bootstrap %s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// SchemaNotReadyError means the bounded schema wait ended with tables still
// missing. Err is set when the final check itself could not run.
type SchemaNotReadyError struct {
	Missing  []string
	Attempts int
	Err      error
}

func (e *SchemaNotReadyError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, name := range e.Missing {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	msg := fmt.Sprintf("schema not ready after %d attempts: missing tables %s", e.Attempts, strings.Join(quoted, ", "))
	if e.Err != nil {
		msg += fmt.Sprintf(" (final check failed: %v)", e.Err)
	}
	return msg
}

func (e *SchemaNotReadyError) Unwrap() error { return e.Err }

// ResolutionError means a row that must exist after an upsert cannot be
// found.
type ResolutionError struct {
	Entity string
	Key    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s %q could not be resolved", e.Entity, e.Key)
}
