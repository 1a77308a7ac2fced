package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConcurrentModification is wrapped by an IoError when a file changed on disk
// between being read and being rewritten
var ErrConcurrentModification = errors.New("file changed on disk while the patch was being applied")

// ParseError reports a malformed patch document.
// Line is 1-based and 0 when the error is not tied to a line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid patch: line %d: %s", e.Line, e.Msg)
	}
	return "invalid patch: " + e.Msg
}

func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ChunkNotFoundError reports a chunk whose context anchor or old lines could not be
// located in the target file
type ChunkNotFoundError struct {
	File string
	// Context is set when the "@@" anchor itself was not found
	Context string
	// Lines holds the chunk's old lines when the anchor was found but the lines were not
	Lines []string
}

func (e *ChunkNotFoundError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("failed to find context %q in %s", e.Context, e.File)
	}
	return fmt.Sprintf("failed to find expected lines in %s:\n%s", e.File, strings.Join(e.Lines, "\n"))
}

// Excerpt returns the chunk content that failed to match, for diagnostics
func (e *ChunkNotFoundError) Excerpt() string {
	if e.Context != "" {
		return e.Context
	}
	return strings.Join(e.Lines, "\n")
}

// IoError wraps a file-system failure for a specific path
type IoError struct {
	Path string
	Op   string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// ArgumentError reports invalid input to the applier
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}
