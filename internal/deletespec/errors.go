package deletespec

import (
	"errors"
	"fmt"
)

// StructuralError reports a defect in a Specification graph or in how it
// is driven. It is never retried.
type StructuralError struct {
	Spec   string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Spec == "" {
		return "delete spec: " + e.Reason
	}
	return fmt.Sprintf("delete spec %s: %s", e.Spec, e.Reason)
}

func structural(spec string, format string, args ...any) *StructuralError {
	return &StructuralError{Spec: spec, Reason: fmt.Sprintf(format, args...)}
}

// ExecutionError wraps a failure reported by the session while running a
// step's select or delete.
type ExecutionError struct {
	Spec   string
	Op     string
	Path   string
	RootID int64
	Step   int
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s (spec %s, step %d, root id %d): %v", e.Op, e.Path, e.Spec, e.Step, e.RootID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func IsStructural(err error) bool {
	var target *StructuralError
	return errors.As(err, &target)
}

func IsExecution(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
