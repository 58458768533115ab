package access

import (
	"fmt"
	"strings"
)

// PermissionError indicates the acting user is not authorized for the
// attempted transition.
type PermissionError struct {
	Reason string
}

func (e PermissionError) Error() string { return e.Reason }

// ValidationError indicates the transition's completion predicate or input
// checks failed. Fields carries per-field messages so several failures can
// surface at once.
type ValidationError struct {
	Reason string
	Fields map[string]string
}

func (e ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// ConflictError indicates a competing writer already performed the
// transition, e.g. a second approver racing an already-bound approval.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

func Permissionf(format string, args ...any) PermissionError {
	return PermissionError{Reason: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) ConflictError {
	return ConflictError{Reason: fmt.Sprintf(format, args...)}
}
