package engine

import (
	"errors"
	"fmt"
)

// Code identifies an engine failure kind. Every error the engine surfaces
// carries one, so callers (HTTP layer, agent integration) can branch on it
// without string matching.
type Code string

const (
	CodeNotFound                   Code = "not_found"
	CodeInvalidStatus              Code = "invalid_status"
	CodeSelfDependency             Code = "self_dependency"
	CodeDuplicateEdge              Code = "duplicate_edge"
	CodeEdgeNotFound               Code = "edge_not_found"
	CodeCycleDetected              Code = "cycle_detected"
	CodeOwnershipConflict          Code = "ownership_conflict"
	CodeDefaultSubprojectProtected Code = "default_subproject_protected"
	CodeCrossProjectReference      Code = "cross_project_reference"
	CodeValidation                 Code = "validation_error"
)

// Error is a single engine failure. Field is set for field-level validation
// failures, empty otherwise.
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return newError(CodeNotFound, format, args...)
}

func validation(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the engine code from an error chain; empty for errors that
// did not originate as engine failures (store faults and the like).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
