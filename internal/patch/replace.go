package patch

import (
	"sort"
	"strings"
)

// Engine computes and applies the line replacements described by update chunks
type Engine struct {
	locator *Locator
}

// NewEngine creates an Engine with its own Locator
func NewEngine() *Engine {
	return &Engine{locator: NewLocator()}
}

// Locator returns the locator used for chunk matching
func (e *Engine) Locator() *Locator {
	return e.locator
}

// ApplyChunks applies chunks to original and returns the new content together
// with a positional diff. label names the file in errors.
//
// The result always ends with a newline unless it is empty.
func (e *Engine) ApplyChunks(original string, chunks []Chunk, label string) (UpdateResult, error) {
	lines := SplitLines(original)

	replacements, err := e.ComputeReplacements(lines, chunks, label)
	if err != nil {
		return UpdateResult{}, err
	}

	newLines := ApplyReplacements(lines, replacements)
	newLines = append(newLines, "")
	newContent := strings.Join(newLines, "\n")

	return UpdateResult{
		NewContent:  newContent,
		UnifiedDiff: PositionalDiff(original, newContent),
	}, nil
}

// ComputeReplacements locates every chunk in lines and returns the replacements
// sorted by start index. The search cursor only moves forward, so replacements
// never overlap.
func (e *Engine) ComputeReplacements(lines []string, chunks []Chunk, label string) ([]Replacement, error) {
	var replacements []Replacement
	cursor := 0

	for _, chunk := range chunks {
		anchored := false
		if chunk.HasContext {
			idx := e.locator.Find(lines, []string{chunk.Context}, cursor, false)
			if idx < 0 {
				return nil, &ChunkNotFoundError{File: label, Context: chunk.Context}
			}
			cursor = idx + 1
			anchored = true
		}

		if len(chunk.OldLines) == 0 {
			at := cursor
			if !anchored {
				at = len(lines)
				if at > 0 && lines[at-1] == "" {
					at--
				}
			}
			replacements = append(replacements, Replacement{Start: at, NewLines: chunk.NewLines})
			continue
		}

		pattern, newSlice := chunk.OldLines, chunk.NewLines
		found := e.locator.Find(lines, pattern, cursor, chunk.EOF)
		if found < 0 && pattern[len(pattern)-1] == "" {
			// trailing empty line is usually an artifact of how the patch was captured
			pattern = pattern[:len(pattern)-1]
			if len(newSlice) > 0 && newSlice[len(newSlice)-1] == "" {
				newSlice = newSlice[:len(newSlice)-1]
			}
			found = e.locator.Find(lines, pattern, cursor, chunk.EOF)
		}
		if found < 0 {
			return nil, &ChunkNotFoundError{File: label, Lines: chunk.OldLines}
		}

		replacements = append(replacements, Replacement{Start: found, OldLen: len(pattern), NewLines: newSlice})
		cursor = found + len(pattern)
	}

	sort.SliceStable(replacements, func(i, j int) bool {
		return replacements[i].Start < replacements[j].Start
	})
	return replacements, nil
}

// ApplyReplacements returns a copy of lines with replacements spliced in.
// replacements must be sorted by Start; they are applied from the highest
// index down so earlier splices never shift later offsets.
func ApplyReplacements(lines []string, replacements []Replacement) []string {
	result := make([]string, len(lines))
	copy(result, lines)

	for i := len(replacements) - 1; i >= 0; i-- {
		r := replacements[i]
		tail := append([]string(nil), result[r.Start+r.OldLen:]...)
		result = append(result[:r.Start], r.NewLines...)
		result = append(result, tail...)
	}
	return result
}

// SplitLines splits content on "\n", dropping the empty element produced by a
// trailing newline
func SplitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// PositionalDiff compares old and new line by line at the same positions.
// It is not a minimal diff; it returns "" when the contents are equal.
func PositionalDiff(oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}
	oldLines := SplitLines(oldContent)
	newLines := SplitLines(newContent)

	var sb strings.Builder
	sb.WriteString("@@ -1 +1 @@")
	for i := 0; i < len(oldLines) || i < len(newLines); i++ {
		switch {
		case i >= len(newLines):
			sb.WriteString("\n-" + oldLines[i])
		case i >= len(oldLines):
			sb.WriteString("\n+" + newLines[i])
		case oldLines[i] == newLines[i]:
			sb.WriteString("\n " + oldLines[i])
		default:
			sb.WriteString("\n-" + oldLines[i])
			sb.WriteString("\n+" + newLines[i])
		}
	}
	return sb.String()
}
