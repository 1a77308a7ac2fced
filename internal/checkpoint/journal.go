// Package checkpoint records the on-disk state of files before they are
// mutated so a failed multi-file operation can be rolled back.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Journal holds pre-mutation snapshots for one operation.
// Each path is snapshotted once, on its first Track call.
type Journal struct {
	mu      sync.Mutex
	id      string
	entries []entry
	tracked map[string]bool
}

// entry is the state of one path before the operation touched it
type entry struct {
	path    string
	existed bool
	data    []byte
	mode    fs.FileMode
	// createdDirs are parent directories that did not exist yet, deepest first
	createdDirs []string
}

// NewJournal creates an empty journal with a fresh ID
func NewJournal() *Journal {
	return &Journal{
		id:      ulid.Make().String(),
		tracked: make(map[string]bool),
	}
}

// ID returns the journal identifier, used to correlate log lines
func (j *Journal) ID() string {
	return j.id
}

// Track snapshots path unless it was already tracked.
// It must be called before the path (or its parent directories) are modified.
func (j *Journal) Track(path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if j.tracked[abs] {
		return nil
	}

	e := entry{path: abs}
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("snapshot %s: is a directory", path)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", path, err)
		}
		e.existed = true
		e.data = data
		e.mode = info.Mode().Perm()
	case errors.Is(err, fs.ErrNotExist):
		e.createdDirs = missingDirs(filepath.Dir(abs))
	default:
		return fmt.Errorf("snapshot %s: %w", path, err)
	}

	j.entries = append(j.entries, e)
	j.tracked[abs] = true
	return nil
}

// Paths returns the tracked paths in the order they were first tracked
func (j *Journal) Paths() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths := make([]string, len(j.entries))
	for i, e := range j.entries {
		paths[i] = e.path
	}
	return paths
}

// Len returns the number of tracked paths
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Rollback restores every tracked path to its snapshot, newest first.
// Files that did not exist are removed along with any parent directories
// that were created for them and are empty again. All failures are reported.
func (j *Journal) Rollback() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.existed {
			if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", e.path, err))
				continue
			}
			if err := os.WriteFile(e.path, e.data, e.mode); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", e.path, err))
			}
			continue
		}

		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.path, err))
			continue
		}
		for _, dir := range e.createdDirs {
			// fails harmlessly when something else now lives in the directory
			if err := os.Remove(dir); err != nil {
				break
			}
		}
	}
	j.entries = nil
	j.tracked = make(map[string]bool)
	return errors.Join(errs...)
}

// Discard forgets all snapshots after a successful operation
func (j *Journal) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
	j.tracked = make(map[string]bool)
}

// missingDirs returns dir and its ancestors that do not exist yet, deepest first
func missingDirs(dir string) []string {
	var dirs []string
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		dirs = append(dirs, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dirs
}
