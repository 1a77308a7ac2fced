package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

// ToolErrorType tells the caller who has to fix a failed call
type ToolErrorType int

const (
	// ToolErrorRuntime - the call was well formed but the environment failed it
	// (unreadable file, disk full, file edited underneath us)
	ToolErrorRuntime ToolErrorType = iota

	// ToolErrorSemantic - the caller sent something wrong (malformed patch,
	// stale context, path outside the workspace) and should regenerate it
	ToolErrorSemantic
)

func (t ToolErrorType) String() string {
	if t == ToolErrorSemantic {
		return "semantic"
	}
	return "runtime"
}

// ToolError is an error type that classifies errors as runtime or semantic
type ToolError struct {
	Type    ToolErrorType
	Message string
	Details map[string]any // Optional structured data for the caller
	cause   error
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error, if any
func (e *ToolError) Unwrap() error {
	return e.cause
}

// ToJSON implements JSONError interface for structured output
func (e *ToolError) ToJSON() map[string]any {
	result := map[string]any{
		"success":    false,
		"error":      e.Message,
		"error_type": e.Type.String(),
	}
	for k, v := range e.Details {
		result[k] = v
	}
	return result
}

// RuntimeError creates a runtime error
func RuntimeError(msg string) *ToolError {
	return &ToolError{Type: ToolErrorRuntime, Message: msg}
}

// RuntimeErrorf creates a formatted runtime error
func RuntimeErrorf(format string, args ...any) *ToolError {
	return &ToolError{Type: ToolErrorRuntime, Message: fmt.Sprintf(format, args...)}
}

// RuntimeErrorWithDetails creates a runtime error with structured details
func RuntimeErrorWithDetails(msg string, details map[string]any) *ToolError {
	return &ToolError{Type: ToolErrorRuntime, Message: msg, Details: details}
}

// SemanticError creates a semantic error
func SemanticError(msg string) *ToolError {
	return &ToolError{Type: ToolErrorSemantic, Message: msg}
}

// SemanticErrorf creates a formatted semantic error
func SemanticErrorf(format string, args ...any) *ToolError {
	return &ToolError{Type: ToolErrorSemantic, Message: fmt.Sprintf(format, args...)}
}

// SemanticErrorWithDetails creates a semantic error with structured details
func SemanticErrorWithDetails(msg string, details map[string]any) *ToolError {
	return &ToolError{Type: ToolErrorSemantic, Message: msg, Details: details}
}

// IsSemantic reports whether err is a ToolError the caller can fix by
// sending a different request
func IsSemantic(err error) bool {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Type == ToolErrorSemantic
	}
	return false
}

// WrapAsRuntime wraps any error as a runtime error
func WrapAsRuntime(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Type: ToolErrorRuntime, Message: err.Error(), cause: err}
}

// FromPatchError converts an error returned by the patch applier into a
// ToolError. report may be nil.
func FromPatchError(err error, report *patch.Report) *ToolError {
	if err == nil {
		return nil
	}

	te := &ToolError{
		Type:    ToolErrorRuntime,
		Message: fmt.Sprintf("apply_patch failed: %v", err),
		Details: map[string]any{},
		cause:   err,
	}

	var (
		parseErr    *patch.ParseError
		notFoundErr *patch.ChunkNotFoundError
		argErr      *patch.ArgumentError
		ioErr       *patch.IoError
	)
	switch {
	case errors.As(err, &parseErr):
		te.Type = ToolErrorSemantic
		if parseErr.Line > 0 {
			te.Details["line"] = parseErr.Line
		}
	case errors.As(err, &notFoundErr):
		te.Type = ToolErrorSemantic
		te.Details["failed_file"] = notFoundErr.File
		te.Details["expected_lines"] = notFoundErr.Excerpt()
		te.Details["hint"] = "re-read the file and regenerate the chunk from its current content"
	case errors.As(err, &argErr):
		te.Type = ToolErrorSemantic
	case errors.As(err, &ioErr):
		te.Details["failed_file"] = ioErr.Path
		te.Details["op"] = ioErr.Op
		switch {
		case errors.Is(err, workspace.ErrOutsideWorkspace), errors.Is(err, workspace.ErrDeniedPath):
			te.Type = ToolErrorSemantic
		case errors.Is(err, patch.ErrConcurrentModification):
			te.Details["hint"] = "the file changed while the patch was applied; re-read it and retry"
		}
	}

	if report != nil {
		if report.RolledBack {
			te.Details["rolled_back"] = true
		} else if !report.Affected.Empty() {
			te.Details["applied_so_far"] = summaryLines(report.Affected)
		}
	}
	if len(te.Details) == 0 {
		te.Details = nil
	}
	return te
}

// JSONError is an interface for errors that can provide structured JSON output
type JSONError interface {
	error
	ToJSON() map[string]any
}

// FormatError checks if an error implements JSONError and returns JSON, otherwise returns plain text
func FormatError(err error) string {
	var jsonErr JSONError
	if errors.As(err, &jsonErr) {
		jsonBytes, marshalErr := json.MarshalIndent(jsonErr.ToJSON(), "", "  ")
		if marshalErr == nil {
			return string(jsonBytes)
		}
	}
	return fmt.Sprintf("Error: %v", err)
}
