package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the workspace root when no --config is given
const DefaultFileName = ".kvit-patch.yaml"

// RootEnv overrides workspace.root when set
const RootEnv = "KVIT_PATCH_ROOT"

type Config struct {
	Workspace struct {
		Root                  string   `yaml:"root"`
		AllowOutsideWorkspace bool     `yaml:"allow_outside_workspace"`
		DeniedPaths           []string `yaml:"denied_paths"` // doublestar globs, e.g. ".git/**"
	} `yaml:"workspace"`

	Patch PatchConfig `yaml:"patch"`

	Log LogConfig `yaml:"log"`

	Tools ToolsConfig `yaml:"tools"`
}

// PatchConfig controls how patches are parsed and applied
type PatchConfig struct {
	Atomic                bool   `yaml:"atomic"`                  // roll back every file when one hunk fails
	DetectConcurrentEdits *bool  `yaml:"detect_concurrent_edits"` // nil = default true
	StrictHeaders         bool   `yaml:"strict_headers"`          // reject unrecognized lines instead of skipping them
	FileMode              string `yaml:"file_mode"`               // octal mode for new files (default "0644")
}

// LogConfig configures the zap file logger
type LogConfig struct {
	Path        string `yaml:"path"` // empty = no log file
	Development bool   `yaml:"development"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// ToolsConfig holds per-tool configuration
type ToolsConfig struct {
	ApplyPatch ApplyPatchToolConfig `yaml:"apply_patch"`
}

// ApplyPatchToolConfig configures the apply_patch tool
type ApplyPatchToolConfig struct {
	Enabled        *bool `yaml:"enabled"` // nil = default true
	MaxPatchSizeKB int   `yaml:"max_patch_size_kb"`
	ShowDiff       bool  `yaml:"show_diff"` // include a unified diff in the tool output
}

// ConcurrentEditCheck reports whether files are re-hashed before being rewritten.
// Defaults to true.
func (p *PatchConfig) ConcurrentEditCheck() bool {
	if p.DetectConcurrentEdits == nil {
		return true
	}
	return *p.DetectConcurrentEdits
}

// Mode parses FileMode
func (p *PatchConfig) Mode() (fs.FileMode, error) {
	v, err := strconv.ParseUint(p.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid patch.file_mode %q: %w", p.FileMode, err)
	}
	if v > 0777 {
		return 0, fmt.Errorf("invalid patch.file_mode %q: not a permission mode", p.FileMode)
	}
	return fs.FileMode(v), nil
}

// IsEnabled returns whether the apply_patch tool is registered. Defaults to true.
func (a *ApplyPatchToolConfig) IsEnabled() bool {
	if a.Enabled == nil {
		return true
	}
	return *a.Enabled
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads a YAML config file and fills in defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if root := os.Getenv(RootEnv); root != "" {
		cfg.Workspace.Root = root
	}

	// roots are relative to the config file, not the working directory
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Join(filepath.Dir(path), cfg.Workspace.Root)
	}

	cfg.applyDefaults()
	if _, err := cfg.Patch.Mode(); err != nil {
		return nil, err
	}
	if err := cfg.resolveRoot(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when given. Otherwise it tries DefaultFileName in
// root and falls back to Default when that file does not exist.
func LoadOrDefault(path, root string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg, err := Load(filepath.Join(root, DefaultFileName))
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if env := os.Getenv(RootEnv); env != "" {
			cfg.Workspace.Root = env
		}
		return cfg, cfg.resolveRoot()
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	if c.Workspace.DeniedPaths == nil {
		c.Workspace.DeniedPaths = []string{".git/**"}
	}
	if c.Patch.FileMode == "" {
		c.Patch.FileMode = "0644"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Tools.ApplyPatch.MaxPatchSizeKB == 0 {
		c.Tools.ApplyPatch.MaxPatchSizeKB = 512
	}
}

func (c *Config) resolveRoot() error {
	absRoot, err := filepath.Abs(c.Workspace.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	c.Workspace.Root = absRoot
	return nil
}
