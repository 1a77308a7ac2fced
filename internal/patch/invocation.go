package patch

import (
	"regexp"
	"strings"
)

// InvocationKind classifies a command line inspected by MaybeParseInvocation
type InvocationKind int

const (
	// NotPatch means the command is not an apply_patch invocation
	NotPatch InvocationKind = iota
	// PatchBody means the command carries a patch that parsed cleanly
	PatchBody
	// PatchParseFailed means the command is apply_patch but its patch is malformed
	PatchParseFailed
)

// Invocation is the result of inspecting a command line for an embedded patch
type Invocation struct {
	Kind  InvocationKind
	Patch string
	Hunks []Hunk
	Err   error
	// Workdir is set when the script changed directory first ("cd dir && apply_patch ...")
	Workdir string
}

var (
	patchCommands = map[string]bool{"apply_patch": true, "applypatch": true}
	shellCommands = map[string]bool{"bash": true, "sh": true, "zsh": true}

	cdPrefixRegex = regexp.MustCompile(`^cd\s+('[^']*'|"[^"]*"|\S+)\s*&&\s*`)
)

// MaybeParseInvocation recognises the ways an agent may run the patch tool
// through a shell:
//
//	apply_patch '<patch>'
//	bash -lc "apply_patch <<'EOF'\n<patch>\nEOF"
//	bash -lc "cd sub && apply_patch <<'EOF'\n<patch>\nEOF"
//
// parser may be nil, in which case a lenient parser is used.
func MaybeParseInvocation(argv []string, parser *Parser) Invocation {
	if parser == nil {
		parser = &Parser{}
	}

	var body, workdir string
	switch {
	case len(argv) == 2 && patchCommands[argv[0]]:
		body = argv[1]
	case len(argv) == 3 && shellCommands[argv[0]] && (argv[1] == "-lc" || argv[1] == "-c"):
		var ok bool
		body, workdir, ok = extractHeredocScript(argv[2])
		if !ok {
			return Invocation{Kind: NotPatch}
		}
	default:
		return Invocation{Kind: NotPatch}
	}

	hunks, err := parser.Parse(body)
	if err != nil {
		return Invocation{Kind: PatchParseFailed, Patch: body, Err: err, Workdir: workdir}
	}
	return Invocation{Kind: PatchBody, Patch: body, Hunks: hunks, Workdir: workdir}
}

// extractHeredocScript pulls the patch out of "apply_patch <<'EOF' ... EOF"
func extractHeredocScript(script string) (body, workdir string, ok bool) {
	script = strings.TrimSpace(script)
	if m := cdPrefixRegex.FindStringSubmatch(script); m != nil {
		workdir = strings.Trim(m[1], `'"`)
		script = script[len(m[0]):]
	}

	// shells accept "apply_patch<<EOF" as well as "apply_patch <<EOF"
	idx := strings.Index(script, "<<")
	if idx < 0 || !patchCommands[strings.TrimSpace(script[:idx])] {
		return "", "", false
	}
	rest := script[idx:]
	unwrapped := StripHeredoc(rest)
	if unwrapped == rest {
		return "", "", false
	}
	return unwrapped, workdir, true
}
