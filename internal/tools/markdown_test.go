package tools

import (
	"strings"
	"testing"
)

const markdownResponse = "I'll rename the greeting.\n\n" +
	"Here is the fix:\n\n" +
	"```diff\n" +
	"*** Begin Patch\n" +
	"*** Update File: main.go\n" +
	"@@\n" +
	"-\tfmt.Println(\"hi\")\n" +
	"+\tfmt.Println(\"hello\")\n" +
	"*** End Patch\n" +
	"```\n\n" +
	"And the test stays as is:\n\n" +
	"```go\n" +
	"func TestMain(t *testing.T) {}\n" +
	"```\n"

func TestExtractCodeBlocks(t *testing.T) {
	blocks, err := ExtractCodeBlocks([]byte(markdownResponse))
	if err != nil {
		t.Fatalf("ExtractCodeBlocks() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Lang != "diff" || blocks[0].Hint != "Here is the fix:" {
		t.Errorf("block[0] = lang %q hint %q", blocks[0].Lang, blocks[0].Hint)
	}
	if !strings.Contains(blocks[0].Content, "\tfmt.Println(\"hello\")") {
		t.Errorf("block[0] content lost indentation: %q", blocks[0].Content)
	}
	if blocks[1].Lang != "go" {
		t.Errorf("block[1].Lang = %q, want go", blocks[1].Lang)
	}
}

func TestExtractPatches(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   int
	}{
		{"fenced patch", markdownResponse, 1},
		{"unfenced patch", "Apply this:\n*** Begin Patch\n*** Delete File: a\n*** End Patch\n", 1},
		{"no patch", "Nothing to change.\n\n```go\nfunc f() {}\n```\n", 0},
		{
			"two fenced patches",
			"```\n*** Begin Patch\n*** Delete File: a\n*** End Patch\n```\n\n```\n*** Begin Patch\n*** Delete File: b\n*** End Patch\n```\n",
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patches, err := ExtractPatches([]byte(tt.source))
			if err != nil {
				t.Fatalf("ExtractPatches() error = %v", err)
			}
			if len(patches) != tt.want {
				t.Fatalf("got %d patches, want %d", len(patches), tt.want)
			}
			for _, p := range patches {
				if !strings.Contains(p, "*** End Patch") {
					t.Errorf("patch is missing its end marker: %q", p)
				}
			}
		})
	}
}
