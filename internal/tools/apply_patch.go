package tools

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

// ApplyPatchTool applies "*** Begin Patch" documents inside a workspace
type ApplyPatchTool struct {
	cfg    *config.Config
	guard  *workspace.Guard
	logger *zap.Logger
}

func NewApplyPatchTool(cfg *config.Config, guard *workspace.Guard, logger *zap.Logger) *ApplyPatchTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplyPatchTool{
		cfg:    cfg,
		guard:  guard,
		logger: logger.Named("apply_patch"),
	}
}

func (t *ApplyPatchTool) Name() string {
	return "apply_patch"
}

func (t *ApplyPatchTool) Description() string {
	return "Apply a multi-file patch. The patch adds, deletes, updates or moves files inside the workspace. " +
		"Context lines are matched tolerantly (trailing/leading whitespace and typographic punctuation), " +
		"but they must come from the current file content."
}

func (t *ApplyPatchTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patchText": map[string]any{
				"type":        "string",
				"description": "The full patch text, from '*** Begin Patch' to '*** End Patch'.",
			},
		},
		"required":             []string{"patchText"},
		"additionalProperties": false,
	}
}

func (t *ApplyPatchTool) PromptSection() string {
	return `### apply_patch - Edit Files With a Patch
Send the whole change as one patch document:

*** Begin Patch
*** Add File: path/to/new.txt
+first line of the new file
*** Update File: path/to/existing.go
*** Move to: path/to/renamed.go
@@ func main() {
 unchanged context line
-line to remove
+line to add
*** Delete File: path/to/obsolete.txt
*** End Patch

**Rules:**
- Every added-file line starts with '+'
- In updates, ' ' keeps a line, '-' removes it, '+' adds it
- '@@ <line>' names a line above the change to narrow the search; '@@' alone is fine
- '*** End of File' after a chunk pins it to the end of the file
- Paths are relative to the workspace root

**Example:**
{"patchText": "*** Begin Patch\n*** Update File: main.go\n@@\n-fmt.Println(\"hi\")\n+fmt.Println(\"hello\")\n*** End Patch"}`
}

type applyPatchArgs struct {
	PatchText string `json:"patchText"`
}

// ApplyPatchResult is the outcome of one successful apply_patch call
type ApplyPatchResult struct {
	Output   string
	Affected patch.AffectedPaths
	Changes  []patch.FileChange
	Diff     string
}

// ToMap renders the result as the tool's JSON output
func (r *ApplyPatchResult) ToMap() map[string]any {
	m := map[string]any{
		"success":        true,
		"output":         r.Output,
		"files_added":    nonNil(r.Affected.Added),
		"files_modified": nonNil(r.Affected.Modified),
		"files_deleted":  nonNil(r.Affected.Deleted),
	}
	if r.Diff != "" {
		m["diff"] = r.Diff
	}
	return m
}

func (t *ApplyPatchTool) Check(ctx context.Context, args json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return RuntimeErrorf("apply_patch cancelled: %v", err)
	}
	params, err := decodeApplyPatchArgs(args)
	if err != nil {
		return err
	}
	return t.checkText(params.PatchText)
}

func (t *ApplyPatchTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	params, err := decodeApplyPatchArgs(args)
	if err != nil {
		return nil, err
	}
	result, err := t.Apply(ctx, params.PatchText)
	if err != nil {
		return nil, err
	}
	return result.ToMap(), nil
}

// Apply validates and applies patch text. Errors are *ToolError.
func (t *ApplyPatchTool) Apply(ctx context.Context, text string) (*ApplyPatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, RuntimeErrorf("apply_patch cancelled: %v", err)
	}
	if err := t.checkText(text); err != nil {
		return nil, err
	}

	mode, err := t.cfg.Patch.Mode()
	if err != nil {
		return nil, RuntimeError(err.Error())
	}
	applier := patch.NewApplier(
		patch.WithLogger(t.logger),
		patch.WithResolver(t.guard.Resolve),
		patch.WithAtomic(t.cfg.Patch.Atomic),
		patch.WithConcurrentEditCheck(t.cfg.Patch.ConcurrentEditCheck()),
		patch.WithStrictParsing(t.cfg.Patch.StrictHeaders),
		patch.WithFileMode(mode),
	)

	report, err := applier.ApplyText(text)
	if err != nil {
		return nil, FromPatchError(err, report)
	}

	result := &ApplyPatchResult{
		Output:   "Success. Updated the following files:\n" + strings.Join(summaryLines(report.Affected), "\n"),
		Affected: report.Affected,
		Changes:  report.Changes,
	}
	if t.cfg.Tools.ApplyPatch.ShowDiff {
		result.Diff = UnifiedDiff(report.Changes)
	}
	return result, nil
}

// checkText rejects patches that must not reach the applier: empty or
// oversized text, malformed documents and paths the guard refuses
func (t *ApplyPatchTool) checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return SemanticError("patchText is required")
	}
	if limit := t.cfg.Tools.ApplyPatch.MaxPatchSizeKB; limit > 0 && len(text) > limit*1024 {
		return SemanticErrorf("patch is %d KB, larger than the %d KB limit; split it into smaller patches", len(text)/1024, limit)
	}

	parser := &patch.Parser{Strict: t.cfg.Patch.StrictHeaders}
	hunks, err := parser.Parse(text)
	if err != nil {
		return FromPatchError(err, nil)
	}

	for _, h := range hunks {
		paths := []string{h.TargetPath()}
		if u, ok := h.(*patch.UpdateFile); ok && u.MovePath != "" {
			paths = append(paths, u.MovePath)
		}
		for _, p := range paths {
			if _, err := t.guard.Resolve(p); err != nil {
				return SemanticErrorWithDetails(err.Error(), map[string]any{"failed_file": p})
			}
		}
	}
	return nil
}

func decodeApplyPatchArgs(args json.RawMessage) (applyPatchArgs, error) {
	var params applyPatchArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return params, SemanticErrorf("invalid arguments: %v", err)
	}
	return params, nil
}

// summaryLines renders affected paths as "A path", "M path", "D path"
func summaryLines(affected patch.AffectedPaths) []string {
	lines := make([]string, 0, affected.Total())
	for _, p := range affected.Added {
		lines = append(lines, "A "+p)
	}
	for _, p := range affected.Modified {
		lines = append(lines, "M "+p)
	}
	for _, p := range affected.Deleted {
		lines = append(lines, "D "+p)
	}
	return lines
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
