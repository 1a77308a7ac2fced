package tools

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced code block of a markdown document
type CodeBlock struct {
	// Hint is the paragraph right before the block, often naming the file or intent
	Hint    string
	Lang    string
	Content string
}

// ExtractCodeBlocks returns the fenced code blocks of source in document order
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		block := CodeBlock{
			Lang:    string(fenced.Language(source)),
			Content: segmentsText(fenced.Lines(), source),
		}
		if p, ok := fenced.PreviousSibling().(*ast.Paragraph); ok {
			block.Hint = strings.TrimSpace(segmentsText(p.Lines(), source))
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func segmentsText(lines *text.Segments, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// ExtractPatches returns every patch document found in a markdown response.
// Fenced blocks holding a "*** Begin Patch" marker win; when there are none,
// an unfenced patch in the text itself is returned.
func ExtractPatches(source []byte) ([]string, error) {
	blocks, err := ExtractCodeBlocks(source)
	if err != nil {
		return nil, err
	}

	var patches []string
	for _, b := range blocks {
		if strings.Contains(b.Content, "*** Begin Patch") {
			patches = append(patches, b.Content)
		}
	}
	if len(patches) == 0 && bytes.Contains(source, []byte("*** Begin Patch")) {
		patches = append(patches, string(source))
	}
	return patches, nil
}
