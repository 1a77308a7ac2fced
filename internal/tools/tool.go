// Package tools exposes the patch engine to coding agents as JSON-argument
// tools, with argument validation, workspace confinement and result rendering.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface every agent-facing tool implements
type Tool interface {
	// Name returns the tool identifier (e.g., "apply_patch")
	Name() string

	// Description returns a one-paragraph description for the model
	Description() string

	// JSONSchema returns the OpenAI-compatible parameter schema
	JSONSchema() map[string]any

	// Check validates arguments without touching the file system.
	// Returns a *ToolError when the call should not go ahead.
	Check(ctx context.Context, args json.RawMessage) error

	// Call executes the tool. Check should be called before Call.
	Call(ctx context.Context, args json.RawMessage) (any, error)

	// PromptSection returns usage documentation for the system prompt,
	// or "" when the description is enough
	PromptSection() string
}
