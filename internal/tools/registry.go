package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kvit-s/kvit-patch/internal/logging"
)

// ToolSpec is the OpenAI-compatible function declaration of a tool
type ToolSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the enabled tools and runs calls against them
type Registry struct {
	tools  map[string]registeredTool
	logger *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger,
	}
}

// Enable adds a tool, compiling its JSON schema for argument validation
func (r *Registry) Enable(t Tool) error {
	schema, err := compileSchema(t.JSONSchema())
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", t.Name(), err)
	}
	r.tools[t.Name()] = registeredTool{tool: t, schema: schema}
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) Tool {
	if rt, ok := r.tools[name]; ok {
		return rt.tool
	}
	return nil
}

// Execute validates args against the tool's schema, then runs Check and Call.
// Failures are returned as *ToolError.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	start := time.Now()
	result, err := r.execute(ctx, name, args)
	r.logger.ToolExecuted(name, time.Since(start), err == nil, err)
	return result, err
}

func (r *Registry) execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	rt, ok := r.tools[name]
	if !ok {
		return nil, SemanticErrorf("unknown tool %q (available: %s)", name, strings.Join(r.ListTools(), ", "))
	}

	if err := validateArgs(rt.schema, args); err != nil {
		return nil, SemanticErrorf("invalid arguments for %s: %v", name, err)
	}
	if err := rt.tool.Check(ctx, args); err != nil {
		return nil, WrapAsRuntime(err)
	}
	result, err := rt.tool.Call(ctx, args)
	if err != nil {
		return nil, WrapAsRuntime(err)
	}
	return result, nil
}

// Specs returns tool specs sorted by name
func (r *Registry) Specs() []ToolSpec {
	names := r.ListTools()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		t := r.tools[name].tool
		spec := ToolSpec{Type: "function"}
		spec.Function.Name = t.Name()
		spec.Function.Description = t.Description()
		spec.Function.Parameters = t.JSONSchema()
		specs = append(specs, spec)
	}
	return specs
}

// GenerateToolPrompt returns the prompt documentation of all tools in name order
func (r *Registry) GenerateToolPrompt() string {
	var sb strings.Builder
	for _, name := range r.ListTools() {
		if section := r.tools[name].tool.PromptSection(); section != "" {
			sb.WriteString(section)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// ListTools returns a sorted list of all enabled tool names
func (r *Registry) ListTools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(v)
}
