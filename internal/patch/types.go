// Package patch parses "*** Begin Patch" documents and applies them to the
// file system, matching recorded context against file content with
// whitespace and Unicode tolerance.
package patch

// Hunk is one file-level operation in a patch document.
// The set of implementations is closed: *AddFile, *DeleteFile, *UpdateFile.
type Hunk interface {
	// TargetPath returns the path the hunk was declared for
	TargetPath() string
	isHunk()
}

// AddFile creates (or overwrites) a file with the given contents
type AddFile struct {
	Path     string `yaml:"path"`
	Contents string `yaml:"contents"`
}

// DeleteFile removes a file; a missing file is not an error
type DeleteFile struct {
	Path string `yaml:"path"`
}

// UpdateFile rewrites an existing file chunk by chunk, optionally moving it
type UpdateFile struct {
	Path     string  `yaml:"path"`
	MovePath string  `yaml:"move_path,omitempty"`
	Chunks   []Chunk `yaml:"chunks"`
}

func (h *AddFile) TargetPath() string    { return h.Path }
func (h *DeleteFile) TargetPath() string { return h.Path }
func (h *UpdateFile) TargetPath() string { return h.Path }

func (*AddFile) isHunk()    {}
func (*DeleteFile) isHunk() {}
func (*UpdateFile) isHunk() {}

// Chunk is one contiguous edit region inside an UpdateFile hunk
type Chunk struct {
	OldLines []string `json:"old_lines" yaml:"old_lines"`
	NewLines []string `json:"new_lines" yaml:"new_lines"`

	// Context is the "@@ <context>" anchor; only meaningful when HasContext is set
	Context    string `json:"context,omitempty" yaml:"context,omitempty"`
	HasContext bool   `json:"has_context,omitempty" yaml:"has_context,omitempty"`

	// EOF is set when the chunk was terminated by "*** End of File"
	EOF bool `json:"eof,omitempty" yaml:"eof,omitempty"`
}

// Replacement replaces OldLen lines starting at Start with NewLines
type Replacement struct {
	Start    int
	OldLen   int
	NewLines []string
}

// UpdateResult is the outcome of applying chunks to a file's content
type UpdateResult struct {
	NewContent  string
	UnifiedDiff string
}

// AffectedPaths lists the paths touched by one patch application, in document order.
// A path appears in at most one of the three lists.
type AffectedPaths struct {
	Added    []string `json:"added" yaml:"added"`
	Modified []string `json:"modified" yaml:"modified"`
	Deleted  []string `json:"deleted" yaml:"deleted"`
}

// Empty reports whether nothing was recorded
func (a AffectedPaths) Empty() bool {
	return len(a.Added) == 0 && len(a.Modified) == 0 && len(a.Deleted) == 0
}

// Total returns the number of recorded paths
func (a AffectedPaths) Total() int {
	return len(a.Added) + len(a.Modified) + len(a.Deleted)
}

func (a *AffectedPaths) recordAdded(path string) {
	if removeString(&a.Deleted, path) {
		// existed before the patch started
		appendUnique(&a.Modified, path)
		return
	}
	if removeString(&a.Modified, path) {
		appendUnique(&a.Modified, path)
		return
	}
	appendUnique(&a.Added, path)
}

func (a *AffectedPaths) recordModified(path string) {
	if contains(a.Added, path) {
		return
	}
	removeString(&a.Deleted, path)
	appendUnique(&a.Modified, path)
}

func (a *AffectedPaths) recordDeleted(path string) {
	removeString(&a.Added, path)
	removeString(&a.Modified, path)
	appendUnique(&a.Deleted, path)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list *[]string, s string) {
	if !contains(*list, s) {
		*list = append(*list, s)
	}
}

func removeString(list *[]string, s string) bool {
	for i, v := range *list {
		if v == s {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
