// Package ui renders kvit-patch results on the terminal.
package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/kvit-s/kvit-patch/internal/tools"
)

// Color definitions for consistent UI
var (
	// Gray for informational lines
	grayColor = color.New(color.FgWhite, color.Faint)

	// Red for errors and removed lines
	errorColor = color.New(color.FgRed)

	// Yellow for warnings
	warnColor = color.New(color.FgYellow)

	// Diff colours
	addedColor  = color.New(color.FgGreen)
	hunkColor   = color.New(color.FgCyan)
	headerColor = color.New(color.Bold)

	// Summary line colours by change kind
	kindColors = map[string]*color.Color{
		"A": color.New(color.FgGreen, color.Bold),
		"M": color.New(color.FgYellow, color.Bold),
		"D": color.New(color.FgRed, color.Bold),
	}
)

// Writer prints results to stdout and diagnostics to stderr.
type Writer struct {
	quiet    bool
	jsonMode bool // machine-readable output; diagnostics are still written to stderr
	stdout   io.Writer
	stderr   io.Writer
}

// NewWriter creates a Writer bound to the process's stdout and stderr
func NewWriter() *Writer {
	return &Writer{stdout: os.Stdout, stderr: os.Stderr}
}

// NewWriterTo creates a Writer with explicit streams, used by tests and embedding callers
func NewWriterTo(stdout, stderr io.Writer) *Writer {
	return &Writer{stdout: stdout, stderr: stderr}
}

// SetQuiet suppresses Info and Warn output.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// SetJSONMode switches results to JSON.
func (w *Writer) SetJSONMode(jsonMode bool) {
	w.jsonMode = jsonMode
}

// IsJSONMode returns true if JSON mode is enabled.
func (w *Writer) IsJSONMode() bool {
	return w.jsonMode
}

// Info prints an info message with [info] prefix in gray.
func (w *Writer) Info(msg string) {
	if w.quiet {
		return
	}
	grayColor.Fprintf(w.stderr, "[info] %s\n", msg)
}

// Warn prints a warning message with [warn] prefix in yellow.
func (w *Writer) Warn(msg string) {
	if w.quiet {
		return
	}
	warnColor.Fprintf(w.stderr, "[warn] %s\n", msg)
}

// Error prints an error message with [error] prefix in red. Never suppressed.
func (w *Writer) Error(msg string) {
	errorColor.Fprintf(w.stderr, "[error] %s\n", msg)
}

// Failure reports a failed command. In JSON mode the error's structured form
// is written to stdout; otherwise the message and any tool error details go
// to stderr.
func (w *Writer) Failure(err error) {
	if w.jsonMode {
		var jsonErr tools.JSONError
		if errors.As(err, &jsonErr) {
			_ = w.JSON(jsonErr.ToJSON())
		} else {
			_ = w.JSON(map[string]any{"success": false, "error": err.Error()})
		}
		return
	}

	w.Error(err.Error())
	var te *tools.ToolError
	if !errors.As(err, &te) {
		return
	}
	keys := make([]string, 0, len(te.Details))
	for k := range te.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := te.Details[k].(type) {
		case []string:
			grayColor.Fprintf(w.stderr, "  %s:\n", k)
			for _, item := range v {
				grayColor.Fprintf(w.stderr, "    %s\n", item)
			}
		case string:
			if strings.Contains(v, "\n") {
				grayColor.Fprintf(w.stderr, "  %s:\n", k)
				for _, line := range strings.Split(v, "\n") {
					grayColor.Fprintf(w.stderr, "    %s\n", line)
				}
				continue
			}
			grayColor.Fprintf(w.stderr, "  %s: %s\n", k, v)
		default:
			grayColor.Fprintf(w.stderr, "  %s: %v\n", k, v)
		}
	}
}

// Summary prints a tool summary such as
// "Success. Updated the following files:\nA a.txt\nM b.txt",
// colouring each change line by its kind.
func (w *Writer) Summary(output string) {
	for _, line := range strings.Split(output, "\n") {
		kind, path, ok := strings.Cut(line, " ")
		if c, known := kindColors[kind]; ok && known {
			c.Fprint(w.stdout, kind)
			fmt.Fprintf(w.stdout, " %s\n", path)
			continue
		}
		fmt.Fprintln(w.stdout, line)
	}
}

// Diff prints a unified diff with added, removed and hunk header lines coloured.
func (w *Writer) Diff(diff string) {
	if diff == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			headerColor.Fprintln(w.stdout, line)
		case strings.HasPrefix(line, "@@"):
			hunkColor.Fprintln(w.stdout, line)
		case strings.HasPrefix(line, "+"):
			addedColor.Fprintln(w.stdout, line)
		case strings.HasPrefix(line, "-"):
			errorColor.Fprintln(w.stdout, line)
		default:
			fmt.Fprintln(w.stdout, line)
		}
	}
}

// JSON writes v as indented JSON to stdout.
func (w *Writer) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.stdout, string(data))
	return err
}

// Raw writes s to stdout unchanged.
func (w *Writer) Raw(s string) {
	fmt.Fprint(w.stdout, s)
}
