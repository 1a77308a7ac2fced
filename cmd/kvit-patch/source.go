package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/kvit-s/kvit-patch/internal/tools"
)

// sourceFlags select where patch text is read from
type sourceFlags struct {
	stdin     bool
	clipboard bool
	markdown  bool
}

// readPatches returns the patch documents to apply, in order.
// Without a file argument or --clipboard the patch is read from stdin.
// With --markdown every fenced block holding a patch becomes one document.
func readPatches(args []string, src sourceFlags, stdin io.Reader) ([]string, error) {
	content, err := readSource(args, src, stdin)
	if err != nil {
		return nil, err
	}

	if !src.markdown {
		if strings.TrimSpace(content) == "" {
			return nil, tools.SemanticError("no patch text given")
		}
		return []string{content}, nil
	}

	patches, err := tools.ExtractPatches([]byte(content))
	if err != nil {
		return nil, tools.SemanticErrorf("failed to read markdown: %v", err)
	}
	if len(patches) == 0 {
		return nil, tools.SemanticError("no \"*** Begin Patch\" block found in markdown")
	}
	return patches, nil
}

func readSource(args []string, src sourceFlags, stdin io.Reader) (string, error) {
	if src.stdin && src.clipboard {
		return "", tools.SemanticError("--stdin and --clipboard are mutually exclusive")
	}
	if len(args) > 0 && (src.stdin || src.clipboard) {
		return "", tools.SemanticError("a patch file cannot be combined with --stdin or --clipboard")
	}

	switch {
	case src.clipboard:
		content, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("failed to read from clipboard: %w", err)
		}
		return content, nil
	case len(args) > 0 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read patch file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}
}
