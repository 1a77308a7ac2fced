package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/tools"
	"github.com/kvit-s/kvit-patch/internal/ui"
)

// applyFlags override the patch section of the config
type applyFlags struct {
	atomic bool
	strict bool
	diff   bool
}

func (f *applyFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.atomic, "atomic", false, "roll back every file when one hunk fails")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "reject unrecognized lines between hunks")
	cmd.Flags().BoolVar(&f.diff, "diff", false, "print a unified diff of the changes")
}

func (f *applyFlags) override(cfg *config.Config) {
	if f.atomic {
		cfg.Patch.Atomic = true
	}
	if f.strict {
		cfg.Patch.StrictHeaders = true
	}
	if f.diff {
		cfg.Tools.ApplyPatch.ShowDiff = true
	}
}

func newApplyCmd(flags *globalFlags, writer *ui.Writer) *cobra.Command {
	var (
		src  sourceFlags
		opts applyFlags
	)

	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply a patch from a file, stdin or the clipboard",
		Long: `Apply a patch from a file, stdin or the clipboard.

With --markdown the input is a markdown document (for example a saved model
response) and every fenced block containing a patch is applied in order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patches, err := readPatches(args, src, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts.override(cfg)

			s, err := openSession(cmd.Context(), cfg, cfg.Workspace.Root, flags.lockWait)
			if err != nil {
				return err
			}
			defer s.Close()

			return applyAll(cmd.Context(), s, patches, writer)
		},
	}

	cmd.Flags().BoolVar(&src.stdin, "stdin", false, "read the patch from stdin")
	cmd.Flags().BoolVar(&src.clipboard, "clipboard", false, "read the patch from the clipboard")
	cmd.Flags().BoolVar(&src.markdown, "markdown", false, "extract patches from fenced blocks of a markdown document")
	opts.register(cmd)
	return cmd
}

func newExecCmd(flags *globalFlags, writer *ui.Writer) *cobra.Command {
	var opts applyFlags

	cmd := &cobra.Command{
		Use:   "exec -- <argv...>",
		Short: "Apply the patch carried by an agent's shell command",
		Long: `Apply the patch carried by an agent's shell command, for example

  kvit-patch exec -- bash -lc "cd sub && apply_patch <<'EOF'
  *** Begin Patch
  ...
  *** End Patch
  EOF"

A leading "cd <dir> &&" makes paths relative to that directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts.override(cfg)

			inv := patch.MaybeParseInvocation(args, &patch.Parser{Strict: cfg.Patch.StrictHeaders})
			switch inv.Kind {
			case patch.NotPatch:
				return tools.SemanticErrorf("not an apply_patch invocation: %s", strings.Join(args, " "))
			case patch.PatchParseFailed:
				return tools.FromPatchError(inv.Err, nil)
			}

			toolRoot := cfg.Workspace.Root
			if inv.Workdir != "" {
				toolRoot = inv.Workdir
				if !filepath.IsAbs(toolRoot) {
					toolRoot = filepath.Join(cfg.Workspace.Root, toolRoot)
				}
				if !cfg.Workspace.AllowOutsideWorkspace && !within(cfg.Workspace.Root, toolRoot) {
					return tools.SemanticErrorf("working directory %q is outside the workspace", inv.Workdir)
				}
			}

			s, err := openSession(cmd.Context(), cfg, toolRoot, flags.lockWait)
			if err != nil {
				return err
			}
			defer s.Close()

			return applyAll(cmd.Context(), s, []string{inv.Patch}, writer)
		},
	}
	cmd.Flags().SetInterspersed(false)
	opts.register(cmd)
	return cmd
}

// applyAll runs each patch through the registry, stopping at the first failure
func applyAll(ctx context.Context, s *session, patches []string, writer *ui.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.registry.Get("apply_patch") == nil {
		return tools.SemanticError("the apply_patch tool is disabled in the config (tools.apply_patch.enabled)")
	}

	results := make([]any, 0, len(patches))
	for i, text := range patches {
		args, err := json.Marshal(map[string]string{"patchText": text})
		if err != nil {
			return err
		}
		result, err := s.registry.Execute(ctx, "apply_patch", args)
		if err != nil {
			if len(patches) > 1 {
				writer.Warn(fmt.Sprintf("patch %d/%d failed", i+1, len(patches)))
			}
			return err
		}
		if writer.IsJSONMode() {
			results = append(results, result)
			continue
		}
		printResult(writer, result)
	}

	if writer.IsJSONMode() {
		if len(results) == 1 {
			return writer.JSON(results[0])
		}
		return writer.JSON(results)
	}
	return nil
}

func printResult(writer *ui.Writer, result any) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	if diff, ok := m["diff"].(string); ok {
		writer.Diff(diff)
	}
	if output, ok := m["output"].(string); ok {
		writer.Summary(output)
	}
}

// within reports whether path is root or below it
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
