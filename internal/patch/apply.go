package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/kvit-s/kvit-patch/internal/checkpoint"
)

// ChangeKind classifies a committed file change
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "A"
	ChangeDelete ChangeKind = "D"
	ChangeUpdate ChangeKind = "M"
)

// FileChange describes one committed hunk
type FileChange struct {
	Kind ChangeKind
	// Path is the path from the patch; for a move it is the source path
	Path     string
	MovePath string

	OldContent string
	NewContent string
	// Diff is the positional diff for updates, empty otherwise
	Diff string
}

// Target returns the path the file lives at after the change
func (c FileChange) Target() string {
	if c.MovePath != "" {
		return c.MovePath
	}
	return c.Path
}

// Report is the detailed outcome of applying hunks
type Report struct {
	Affected AffectedPaths
	Changes  []FileChange
	// RolledBack is set when an atomic application failed and was undone
	RolledBack bool
}

// Applier executes hunks against the file system
type Applier struct {
	engine          *Engine
	parser          *Parser
	logger          *zap.Logger
	resolve         func(string) (string, error)
	atomic          bool
	checkConcurrent bool
	fileMode        fs.FileMode
}

// Option configures an Applier
type Option func(*Applier)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(a *Applier) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithResolver maps patch paths to file-system paths. Errors are reported as IoError.
func WithResolver(resolve func(string) (string, error)) Option {
	return func(a *Applier) {
		if resolve != nil {
			a.resolve = resolve
		}
	}
}

// WithAtomic snapshots every touched file and restores all of them when a
// hunk fails. Without it, hunks applied before the failure stay on disk.
func WithAtomic(atomic bool) Option {
	return func(a *Applier) { a.atomic = atomic }
}

// WithConcurrentEditCheck re-reads an updated file right before writing and
// fails with ErrConcurrentModification if it changed since it was read
func WithConcurrentEditCheck(check bool) Option {
	return func(a *Applier) { a.checkConcurrent = check }
}

// WithStrictParsing makes ApplyText reject unrecognized lines
func WithStrictParsing(strict bool) Option {
	return func(a *Applier) { a.parser = &Parser{Strict: strict} }
}

// WithFileMode sets the permissions of newly created files
func WithFileMode(mode fs.FileMode) Option {
	return func(a *Applier) { a.fileMode = mode }
}

// NewApplier creates an Applier
func NewApplier(opts ...Option) *Applier {
	a := &Applier{
		engine:   NewEngine(),
		parser:   &Parser{},
		logger:   zap.NewNop(),
		resolve:  func(p string) (string, error) { return p, nil },
		fileMode: 0644,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyText parses text and applies the resulting hunks
func (a *Applier) ApplyText(text string) (*Report, error) {
	hunks, err := a.parser.Parse(text)
	if err != nil {
		return &Report{}, err
	}
	return a.ApplyReport(hunks)
}

// Apply applies hunks in order and returns the affected paths.
// On failure the returned paths describe what was committed before the failing hunk.
func (a *Applier) Apply(hunks []Hunk) (AffectedPaths, error) {
	report, err := a.ApplyReport(hunks)
	return report.Affected, err
}

// ApplyReport is Apply with per-file details
func (a *Applier) ApplyReport(hunks []Hunk) (*Report, error) {
	report := &Report{}
	if len(hunks) == 0 {
		return report, &ArgumentError{Msg: "no hunks to apply"}
	}

	log := a.logger.With(zap.Int("hunks", len(hunks)))
	var journal *checkpoint.Journal
	if a.atomic {
		journal = checkpoint.NewJournal()
		log = log.With(zap.String("journal", journal.ID()))
	}

	for i, h := range hunks {
		err := a.applyHunk(h, journal, report)
		if err == nil {
			continue
		}
		log.Warn("patch hunk failed",
			zap.Int("hunk", i+1),
			zap.String("path", h.TargetPath()),
			zap.Error(err),
		)
		if journal == nil {
			return report, err
		}
		if rbErr := journal.Rollback(); rbErr != nil {
			log.Error("patch rollback failed", zap.Error(rbErr))
			return report, errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		log.Info("patch rolled back", zap.Int("applied_hunks", i))
		return &Report{RolledBack: true}, err
	}

	if journal != nil {
		journal.Discard()
	}
	log.Info("patch applied",
		zap.Int("added", len(report.Affected.Added)),
		zap.Int("modified", len(report.Affected.Modified)),
		zap.Int("deleted", len(report.Affected.Deleted)),
	)
	return report, nil
}

func (a *Applier) applyHunk(h Hunk, journal *checkpoint.Journal, report *Report) error {
	switch h := h.(type) {
	case *AddFile:
		return a.addFile(h, journal, report)
	case *DeleteFile:
		return a.deleteFile(h, journal, report)
	case *UpdateFile:
		return a.updateFile(h, journal, report)
	default:
		return &ArgumentError{Msg: fmt.Sprintf("unsupported hunk type %T", h)}
	}
}

func (a *Applier) addFile(h *AddFile, journal *checkpoint.Journal, report *Report) error {
	target, err := a.resolvePath(h.Path)
	if err != nil {
		return err
	}
	if err := track(journal, target); err != nil {
		return &IoError{Path: h.Path, Op: "snapshot", Err: err}
	}
	if err := writeFileAtomic(target, []byte(h.Contents), a.fileMode); err != nil {
		return &IoError{Path: h.Path, Op: "write", Err: err}
	}

	report.Affected.recordAdded(h.Path)
	report.Changes = append(report.Changes, FileChange{Kind: ChangeAdd, Path: h.Path, NewContent: h.Contents})
	a.logger.Info("added file", zap.String("path", h.Path))
	return nil
}

func (a *Applier) deleteFile(h *DeleteFile, journal *checkpoint.Journal, report *Report) error {
	target, err := a.resolvePath(h.Path)
	if err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return &IoError{Path: h.Path, Op: "delete", Err: fmt.Errorf("%s is a directory", h.Path)}
	}
	if err := track(journal, target); err != nil {
		return &IoError{Path: h.Path, Op: "snapshot", Err: err}
	}

	old, _ := os.ReadFile(target)
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IoError{Path: h.Path, Op: "delete", Err: err}
	}

	report.Affected.recordDeleted(h.Path)
	report.Changes = append(report.Changes, FileChange{Kind: ChangeDelete, Path: h.Path, OldContent: string(old)})
	a.logger.Info("deleted file", zap.String("path", h.Path))
	return nil
}

func (a *Applier) updateFile(h *UpdateFile, journal *checkpoint.Journal, report *Report) error {
	source, err := a.resolvePath(h.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(source)
	if err != nil {
		return &IoError{Path: h.Path, Op: "read", Err: err}
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return &IoError{Path: h.Path, Op: "read", Err: err}
	}
	digest := blake3.Sum256(data)

	result, err := a.engine.ApplyChunks(string(data), h.Chunks, h.Path)
	if err != nil {
		return err
	}

	dest := source
	movePath := h.MovePath
	if movePath != "" {
		if dest, err = a.resolvePath(movePath); err != nil {
			return err
		}
		// "./a.txt" or a link back to the source is an in-place update
		if sameFile(source, dest) {
			dest, movePath = source, ""
		}
	}

	if a.checkConcurrent {
		if err := verifyUnchanged(source, digest); err != nil {
			return &IoError{Path: h.Path, Op: "write", Err: err}
		}
	}

	if err := track(journal, source); err != nil {
		return &IoError{Path: h.Path, Op: "snapshot", Err: err}
	}
	if dest != source {
		if err := track(journal, dest); err != nil {
			return &IoError{Path: movePath, Op: "snapshot", Err: err}
		}
	}

	if err := writeFileAtomic(dest, []byte(result.NewContent), info.Mode().Perm()); err != nil {
		return &IoError{Path: h.Path, Op: "write", Err: err}
	}

	change := FileChange{
		Kind:       ChangeUpdate,
		Path:       h.Path,
		MovePath:   movePath,
		OldContent: string(data),
		NewContent: result.NewContent,
		Diff:       result.UnifiedDiff,
	}

	if movePath != "" {
		if err := os.Remove(source); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &IoError{Path: h.Path, Op: "delete", Err: err}
		}
		report.Affected.recordModified(movePath)
		report.Changes = append(report.Changes, change)
		a.logger.Info("moved file", zap.String("path", h.Path), zap.String("move_path", movePath))
		return nil
	}

	report.Affected.recordModified(h.Path)
	report.Changes = append(report.Changes, change)
	a.logger.Info("updated file", zap.String("path", h.Path), zap.Int("chunks", len(h.Chunks)))
	return nil
}

func (a *Applier) resolvePath(path string) (string, error) {
	resolved, err := a.resolve(path)
	if err != nil {
		return "", &IoError{Path: path, Op: "resolve", Err: err}
	}
	return resolved, nil
}

func track(journal *checkpoint.Journal, path string) error {
	if journal == nil {
		return nil
	}
	return journal.Track(path)
}

// sameFile reports whether two resolved paths name the same file
func sameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// verifyUnchanged compares the current content of path against a digest taken earlier
func verifyUnchanged(path string, digest [32]byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if blake3.Sum256(data) != digest {
		return ErrConcurrentModification
	}
	return nil
}
