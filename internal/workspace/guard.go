package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrOutsideWorkspace is returned for paths that resolve outside the root
	ErrOutsideWorkspace = errors.New("path outside workspace")
	// ErrDeniedPath is returned for paths matching a denied pattern
	ErrDeniedPath = errors.New("path is in denied_paths")
)

// Guard maps patch paths onto a workspace root and rejects the ones a patch
// must not touch.
type Guard struct {
	root         string
	denied       []string
	allowOutside bool
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithDeniedPaths adds doublestar patterns (e.g. ".git/**", "**/*.pem").
// Relative patterns match paths relative to the root; absolute and "~/"
// patterns match absolute paths. A pattern that matches a directory denies
// everything below it.
func WithDeniedPaths(patterns ...string) GuardOption {
	return func(g *Guard) {
		g.denied = append(g.denied, patterns...)
	}
}

// WithAllowOutside lets paths escape the root; denied patterns still apply
func WithAllowOutside(allow bool) GuardOption {
	return func(g *Guard) { g.allowOutside = allow }
}

// NewGuard creates a Guard rooted at root, which must be an existing directory
func NewGuard(root string, opts ...GuardOption) (*Guard, error) {
	abs, err := filepath.Abs(expandHome(root))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}

	g := &Guard{root: abs}
	for _, opt := range opts {
		opt(g)
	}
	for i, p := range g.denied {
		p = filepath.ToSlash(expandHome(p))
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid denied path pattern %q", g.denied[i])
		}
		g.denied[i] = p
	}
	return g, nil
}

// Root returns the absolute workspace root
func (g *Guard) Root() string {
	return g.root
}

// Resolve returns the absolute path for a patch path. Relative paths are
// joined onto the root. Symlinks in existing parent directories are followed
// before the confinement check.
func (g *Guard) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty path")
	}

	p := expandHome(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	p = filepath.Clean(p)

	rel, outside := g.relative(realPath(p))
	if outside && !g.allowOutside {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	if pattern, ok := g.deniedBy(p, rel, outside); ok {
		return "", fmt.Errorf("%w: %s matches %q", ErrDeniedPath, path, pattern)
	}
	return p, nil
}

// Relative returns path relative to the root in slash form, for display.
// Paths outside the root are returned unchanged.
func (g *Guard) Relative(path string) string {
	rel, outside := g.relative(path)
	if outside {
		return path
	}
	return rel
}

func (g *Guard) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return "", true
	}
	rel = filepath.ToSlash(rel)
	return rel, rel == ".." || strings.HasPrefix(rel, "../")
}

// deniedBy reports the first pattern matching the path or one of its parents
func (g *Guard) deniedBy(abs, rel string, outside bool) (string, bool) {
	absSlash := filepath.ToSlash(abs)
	for _, pattern := range g.denied {
		if strings.HasPrefix(pattern, "/") {
			if matchSelfOrParent(pattern, absSlash) {
				return pattern, true
			}
			continue
		}
		if !outside && matchSelfOrParent(pattern, rel) {
			return pattern, true
		}
	}
	return "", false
}

func matchSelfOrParent(pattern, name string) bool {
	for {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		i := strings.LastIndex(name, "/")
		if i <= 0 {
			return false
		}
		name = name[:i]
	}
}

// realPath follows symlinks in the deepest existing ancestor of p
func realPath(p string) string {
	dir, rest := p, ""
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			if rest == "" {
				return real
			}
			return filepath.Join(real, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return p
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
