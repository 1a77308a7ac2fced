package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/tools"
	"github.com/kvit-s/kvit-patch/internal/ui"
)

// hunkDoc is the printable form of a parsed hunk
type hunkDoc struct {
	Op       string        `json:"op" yaml:"op"`
	Path     string        `json:"path" yaml:"path"`
	MovePath string        `json:"move_path,omitempty" yaml:"move_path,omitempty"`
	Contents string        `json:"contents,omitempty" yaml:"contents,omitempty"`
	Chunks   []patch.Chunk `json:"chunks,omitempty" yaml:"chunks,omitempty"`
}

func toHunkDocs(hunks []patch.Hunk) []hunkDoc {
	docs := make([]hunkDoc, 0, len(hunks))
	for _, h := range hunks {
		switch h := h.(type) {
		case *patch.AddFile:
			docs = append(docs, hunkDoc{Op: "add", Path: h.Path, Contents: h.Contents})
		case *patch.DeleteFile:
			docs = append(docs, hunkDoc{Op: "delete", Path: h.Path})
		case *patch.UpdateFile:
			docs = append(docs, hunkDoc{Op: "update", Path: h.Path, MovePath: h.MovePath, Chunks: h.Chunks})
		}
	}
	return docs
}

func newParseCmd(writer *ui.Writer) *cobra.Command {
	var (
		src    sourceFlags
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a patch and print its hunks without touching any file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patches, err := readPatches(args, src, cmd.InOrStdin())
			if err != nil {
				return err
			}

			parser := &patch.Parser{Strict: strict}
			var docs []hunkDoc
			for _, text := range patches {
				hunks, err := parser.Parse(text)
				if err != nil {
					return tools.FromPatchError(err, nil)
				}
				docs = append(docs, toHunkDocs(hunks)...)
			}

			if writer.IsJSONMode() {
				return writer.JSON(docs)
			}
			out, err := yaml.Marshal(docs)
			if err != nil {
				return fmt.Errorf("failed to encode hunks: %w", err)
			}
			writer.Raw(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&src.stdin, "stdin", false, "read the patch from stdin")
	cmd.Flags().BoolVar(&src.clipboard, "clipboard", false, "read the patch from the clipboard")
	cmd.Flags().BoolVar(&src.markdown, "markdown", false, "extract patches from fenced blocks of a markdown document")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unrecognized lines between hunks")
	return cmd
}

func newToolSpecCmd(flags *globalFlags, writer *ui.Writer) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "tool-spec",
		Short: "Print the apply_patch tool declaration for an agent",
		Long: `Print the OpenAI-compatible function declarations of the enabled tools as
JSON, or with --prompt the usage documentation to put in a system prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			registry := tools.NewRegistry(nil)
			if cfg.Tools.ApplyPatch.IsEnabled() {
				if err := registry.Enable(tools.NewApplyPatchTool(cfg, nil, nil)); err != nil {
					return err
				}
			}

			if prompt {
				writer.Raw(registry.GenerateToolPrompt())
				return nil
			}
			data, err := json.MarshalIndent(registry.Specs(), "", "  ")
			if err != nil {
				return err
			}
			writer.Raw(string(data) + "\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "print the system prompt section instead of JSON")
	return cmd
}
