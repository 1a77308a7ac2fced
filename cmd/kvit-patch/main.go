package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/logging"
	"github.com/kvit-s/kvit-patch/internal/tools"
	"github.com/kvit-s/kvit-patch/internal/ui"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

// Version info set by ldflags at build time
var (
	version    = "dev"
	commitHash = "dev"
	commitDate = "unknown"
)

// Exit codes
const (
	exitOK       = 0
	exitSemantic = 1 // the patch or the request must be fixed
	exitRuntime  = 2 // environment failure: IO, lock, config
)

type globalFlags struct {
	configPath string
	root       string
	logPath    string
	jsonOutput bool
	quiet      bool
	lockWait   time.Duration
}

func main() {
	writer := ui.NewWriter()
	cmd := newRootCmd(writer)
	if err := cmd.Execute(); err != nil {
		writer.Failure(err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(writer *ui.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "kvit-patch",
		Short: "Apply \"*** Begin Patch\" documents to a workspace.",
		Long: `Apply multi-file patches in the "*** Begin Patch" format produced by coding agents.

Context lines are matched tolerantly, so patches written against slightly
different whitespace or punctuation still apply.

Example: kvit-patch apply --diff change.patch`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			writer.SetJSONMode(flags.jsonOutput)
			writer.SetQuiet(flags.quiet)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file (default: <root>/"+config.DefaultFileName+")")
	pf.StringVar(&flags.root, "root", "", "workspace root (default: config workspace.root or the current directory)")
	pf.StringVar(&flags.logPath, "log", "", "log file path (overrides log.path)")
	pf.BoolVar(&flags.jsonOutput, "json", false, "print results and errors as JSON on stdout")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress informational messages")
	pf.DurationVar(&flags.lockWait, "lock-wait", 0, "wait this long for another kvit-patch run to release the workspace (0 fails at once)")

	rootCmd.AddCommand(
		newApplyCmd(flags, writer),
		newExecCmd(flags, writer),
		newParseCmd(writer),
		newToolSpecCmd(flags, writer),
		newVersionCmd(writer),
	)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return rootCmd
}

func newVersionCmd(writer *ui.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			writer.Raw(fmt.Sprintf("%s-%s-%s\n", version, commitDate, commitHash))
		},
	}
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case tools.IsSemantic(err):
		return exitSemantic
	default:
		return exitRuntime
	}
}

// loadConfig loads the config file and applies the global flag overrides
func loadConfig(flags *globalFlags) (*config.Config, error) {
	lookupRoot := flags.root
	if lookupRoot == "" {
		lookupRoot = "."
	}
	cfg, err := config.LoadOrDefault(flags.configPath, lookupRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.root != "" {
		root, err := filepath.Abs(flags.root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
		}
		cfg.Workspace.Root = root
	}
	if flags.logPath != "" {
		cfg.Log.Path = flags.logPath
	}
	return cfg, nil
}

// session holds everything one command needs to apply patches
type session struct {
	cfg      *config.Config
	logger   *logging.Logger
	lock     *workspace.Lock
	registry *tools.Registry
	tool     *tools.ApplyPatchTool
}

// openSession locks the workspace and wires the apply_patch tool.
// Patch paths are confined to toolRoot, which must be inside the workspace
// unless workspace.allow_outside_workspace is set.
func openSession(ctx context.Context, cfg *config.Config, toolRoot string, lockWait time.Duration) (*session, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	lock, err := acquireLock(ctx, cfg.Workspace.Root, lockWait)
	if err != nil {
		logger.Close()
		return nil, err
	}

	denied := append([]string{workspace.LockFileName}, cfg.Workspace.DeniedPaths...)
	guard, err := workspace.NewGuard(toolRoot,
		workspace.WithDeniedPaths(denied...),
		workspace.WithAllowOutside(cfg.Workspace.AllowOutsideWorkspace),
	)
	if err != nil {
		lock.Release()
		logger.Close()
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		logger:   logger,
		lock:     lock,
		registry: tools.NewRegistry(logger),
		tool:     tools.NewApplyPatchTool(cfg, guard, logger.Zap()),
	}
	if cfg.Tools.ApplyPatch.IsEnabled() {
		if err := s.registry.Enable(s.tool); err != nil {
			s.Close()
			return nil, err
		}
	}
	logger.Info("session opened", zap.String("root", cfg.Workspace.Root), zap.String("tool_root", toolRoot))
	return s, nil
}

func acquireLock(ctx context.Context, root string, wait time.Duration) (*workspace.Lock, error) {
	if wait <= 0 {
		return workspace.AcquireLock(root)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return workspace.AcquireLockContext(ctx, root)
}

func (s *session) Close() {
	s.lock.Release()
	_ = s.logger.Close()
}
