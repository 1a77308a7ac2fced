package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/tools"
	"github.com/kvit-s/kvit-patch/internal/ui"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

// runCLI executes the root command with the given stdin and arguments
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.RootEnv, "")
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(ui.NewWriterTo(&stdout, &stderr))
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

const updatePatch = `*** Begin Patch
*** Update File: a.txt
@@
 one
-two
+TWO
*** End Patch`

func TestApply_FromFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "one\ntwo\nthree\n")
	patchFile := filepath.Join(t.TempDir(), "change.patch")
	writeFile(t, patchFile, updatePatch)

	stdout, _, err := runCLI(t, "", "--root", root, "apply", patchFile)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "a.txt")); got != "one\nTWO\nthree\n" {
		t.Errorf("a.txt = %q", got)
	}
	if !strings.Contains(stdout, "Success. Updated the following files:\nM a.txt\n") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestApply_StdinJSONWithDiff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "one\ntwo\nthree\n")

	stdout, _, err := runCLI(t, updatePatch, "--root", root, "--json", "apply", "--diff")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if result["success"] != true {
		t.Errorf("success = %v", result["success"])
	}
	modified, _ := result["files_modified"].([]any)
	if len(modified) != 1 || modified[0] != "a.txt" {
		t.Errorf("files_modified = %v", result["files_modified"])
	}
	if diff, _ := result["diff"].(string); !strings.Contains(diff, "+TWO") {
		t.Errorf("diff = %q", diff)
	}
}

func TestApply_StaleContextIsSemantic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "something else\n")

	_, _, err := runCLI(t, updatePatch, "--root", root, "apply")
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := exitCode(err); code != exitSemantic {
		t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
	}
	if got := readFile(t, filepath.Join(root, "a.txt")); got != "something else\n" {
		t.Errorf("a.txt changed: %q", got)
	}
}

func TestApply_AtomicFlagRollsBack(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "unrelated\n")

	patchText := "*** Begin Patch\n*** Add File: new.txt\n+hello\n" +
		"*** Update File: a.txt\n@@\n-missing\n+line\n*** End Patch"

	_, _, err := runCLI(t, patchText, "--root", root, "apply", "--atomic")
	if err == nil {
		t.Fatal("expected an error")
	}
	var te *tools.ToolError
	if !errors.As(err, &te) || te.Details["rolled_back"] != true {
		t.Errorf("err = %#v, want rolled_back detail", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "new.txt")); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("new.txt should have been rolled back, stat err = %v", statErr)
	}
}

func TestApply_Markdown(t *testing.T) {
	root := t.TempDir()
	doc := "First change:\n\n```diff\n*** Begin Patch\n*** Add File: one.txt\n+1\n*** End Patch\n```\n\n" +
		"Second change:\n\n```\n*** Begin Patch\n*** Add File: two.txt\n+2\n*** End Patch\n```\n"

	stdout, _, err := runCLI(t, doc, "--root", root, "apply", "--markdown")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if readFile(t, filepath.Join(root, "one.txt")) != "1\n" || readFile(t, filepath.Join(root, "two.txt")) != "2\n" {
		t.Error("markdown patches not applied")
	}
	if strings.Count(stdout, "Success.") != 2 {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestApply_DeniedPath(t *testing.T) {
	root := t.TempDir()
	patchText := "*** Begin Patch\n*** Add File: .git/config\n+x\n*** End Patch"

	_, _, err := runCLI(t, patchText, "--root", root, "apply")
	if code := exitCode(err); code != exitSemantic {
		t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
	}
	if _, statErr := os.Stat(filepath.Join(root, ".git", "config")); statErr == nil {
		t.Error(".git/config must not be written")
	}
}

func TestApply_DisabledTool(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.DefaultFileName), "tools:\n  apply_patch:\n    enabled: false\n")

	_, _, err := runCLI(t, updatePatch, "--root", root, "apply")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("err = %v, want disabled tool error", err)
	}
}

func TestExec(t *testing.T) {
	const body = "*** Begin Patch\n*** Add File: hello.txt\n+hi\n*** End Patch"

	t.Run("heredoc with cd", func(t *testing.T) {
		root := t.TempDir()
		if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
			t.Fatal(err)
		}
		script := "cd sub && apply_patch <<'EOF'\n" + body + "\nEOF"

		if _, _, err := runCLI(t, "", "--root", root, "exec", "--", "bash", "-lc", script); err != nil {
			t.Fatalf("exec failed: %v", err)
		}
		if got := readFile(t, filepath.Join(root, "sub", "hello.txt")); got != "hi\n" {
			t.Errorf("sub/hello.txt = %q", got)
		}
	})

	t.Run("direct argument", func(t *testing.T) {
		root := t.TempDir()
		if _, _, err := runCLI(t, "", "--root", root, "exec", "--", "apply_patch", body); err != nil {
			t.Fatalf("exec failed: %v", err)
		}
		if got := readFile(t, filepath.Join(root, "hello.txt")); got != "hi\n" {
			t.Errorf("hello.txt = %q", got)
		}
	})

	t.Run("not a patch", func(t *testing.T) {
		_, _, err := runCLI(t, "", "--root", t.TempDir(), "exec", "--", "ls", "-la")
		if code := exitCode(err); code != exitSemantic {
			t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
		}
	})

	t.Run("malformed patch", func(t *testing.T) {
		_, _, err := runCLI(t, "", "--root", t.TempDir(), "exec", "--", "apply_patch", "garbage")
		if code := exitCode(err); code != exitSemantic {
			t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
		}
	})

	t.Run("workdir outside workspace", func(t *testing.T) {
		script := "cd .. && apply_patch <<'EOF'\n" + body + "\nEOF"
		_, _, err := runCLI(t, "", "--root", t.TempDir(), "exec", "--", "bash", "-lc", script)
		if err == nil || !strings.Contains(err.Error(), "outside the workspace") {
			t.Errorf("err = %v, want outside-workspace error", err)
		}
	})
}

func TestParse(t *testing.T) {
	patchText := "*** Begin Patch\n*** Add File: new.txt\n+hello\n" +
		"*** Update File: a.txt\n*** Move to: b.txt\n@@ def f():\n-x\n+y\n*** End Patch"

	stdout, _, err := runCLI(t, patchText, "parse")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, want := range []string{"op: add", "path: new.txt", "op: update", "move_path: b.txt", "def f()"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	_, _, err = runCLI(t, "*** Begin Patch\n*** End Patch", "parse")
	if code := exitCode(err); code != exitSemantic {
		t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
	}
}

func TestToolSpec(t *testing.T) {
	stdout, _, err := runCLI(t, "", "--root", t.TempDir(), "tool-spec")
	if err != nil {
		t.Fatalf("tool-spec failed: %v", err)
	}
	var specs []tools.ToolSpec
	if err := json.Unmarshal([]byte(stdout), &specs); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if len(specs) != 1 || specs[0].Function.Name != "apply_patch" {
		t.Errorf("specs = %+v", specs)
	}

	stdout, _, err = runCLI(t, "", "--root", t.TempDir(), "tool-spec", "--prompt")
	if err != nil {
		t.Fatalf("tool-spec --prompt failed: %v", err)
	}
	if !strings.Contains(stdout, "*** Begin Patch") {
		t.Errorf("prompt = %q", stdout)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"semantic", tools.SemanticError("bad patch"), exitSemantic},
		{"runtime", tools.RuntimeError("disk full"), exitRuntime},
		{"plain", errors.New("lock held"), exitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestApply_LockFileIsDenied(t *testing.T) {
	root := t.TempDir()
	patchText := "*** Begin Patch\n*** Delete File: .kvit-patch.lock\n*** End Patch"

	_, _, err := runCLI(t, patchText, "--root", root, "apply")
	if code := exitCode(err); code != exitSemantic {
		t.Errorf("exitCode = %d, want %d (err: %v)", code, exitSemantic, err)
	}
}

func TestApply_LockedWorkspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "one\ntwo\nthree\n")
	held, err := workspace.AcquireLock(root)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer held.Release()

	_, _, err = runCLI(t, updatePatch, "--root", root, "--lock-wait", "150ms", "apply")

	var locked *workspace.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("err = %v, want *workspace.LockedError", err)
	}
	if code := exitCode(err); code != exitRuntime {
		t.Errorf("exitCode = %d, want %d", code, exitRuntime)
	}
	if got := readFile(t, filepath.Join(root, "a.txt")); got != "one\ntwo\nthree\n" {
		t.Errorf("a.txt changed while locked: %q", got)
	}
}
