package tools

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// UnifiedDiff renders the committed changes as one unified diff.
// Added files diff against /dev/null, deleted files against /dev/null as target.
func UnifiedDiff(changes []patch.FileChange) string {
	var sb strings.Builder
	for _, c := range changes {
		from, to := c.Path, c.Target()
		switch c.Kind {
		case patch.ChangeAdd:
			from = "/dev/null"
		case patch.ChangeDelete:
			to = "/dev/null"
		}
		d, err := generateUnifiedDiff(c.OldContent, c.NewContent, from, to)
		if err != nil || d == "" {
			continue
		}
		sb.WriteString(d)
	}
	return sb.String()
}

// generateUnifiedDiff generates a unified diff between old and new content
func generateUnifiedDiff(oldContent, newContent, fromFile, toFile string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
