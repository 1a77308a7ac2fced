package patch

import (
	"regexp"
	"strings"
)

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addPrefix    = "*** Add File:"
	deletePrefix = "*** Delete File:"
	updatePrefix = "*** Update File:"
	movePrefix   = "*** Move to:"
	eofMarker    = "*** End of File"
)

var (
	// heredocHeaderRegex matches the first line of `cat <<'EOF'` style wrappers
	heredocHeaderRegex = regexp.MustCompile(`^(?:cat\s+)?<<-?\s*['"]?(\w+)['"]?\s*$`)

	// unifiedRangeRegex matches "@@ -1,3 +1,4 @@" style headers, which carry no usable anchor
	unifiedRangeRegex = regexp.MustCompile(`^-\d+(?:,\d+)?\s+\+\d+(?:,\d+)?\s*@@`)
)

// Parser turns patch text into hunks.
//
// By default unrecognized record headers and unprefixed chunk lines are
// skipped, which tolerates stray blank lines and commentary. Strict turns
// both into a ParseError.
type Parser struct {
	Strict bool
}

// Parse parses text with a lenient Parser
func Parse(text string) ([]Hunk, error) {
	return (&Parser{}).Parse(text)
}

// Parse parses a patch document into hunks in document order
func (p *Parser) Parse(text string) ([]Hunk, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = StripHeredoc(strings.TrimSpace(text))
	lines := strings.Split(text, "\n")

	begin, end := -1, -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if begin < 0 && trimmed == beginMarker {
			begin = i
		}
		if end < 0 && trimmed == endMarker {
			end = i
		}
	}
	if begin < 0 || end < 0 || begin >= end {
		return nil, &ParseError{Msg: "missing *** Begin Patch / *** End Patch markers"}
	}

	var hunks []Hunk
	for i := begin + 1; i < end; {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, addPrefix):
			path := headerPath(line, addPrefix)
			if path == "" {
				if p.Strict {
					return nil, parseErrorf(i+1, "add file header without a path")
				}
				i++
				continue
			}
			contents, next, err := p.parseAddContents(lines, i+1, end)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, &AddFile{Path: path, Contents: contents})
			i = next

		case strings.HasPrefix(line, deletePrefix):
			path := headerPath(line, deletePrefix)
			if path == "" {
				if p.Strict {
					return nil, parseErrorf(i+1, "delete file header without a path")
				}
				i++
				continue
			}
			hunks = append(hunks, &DeleteFile{Path: path})
			i++

		case strings.HasPrefix(line, updatePrefix):
			path := headerPath(line, updatePrefix)
			if path == "" {
				if p.Strict {
					return nil, parseErrorf(i+1, "update file header without a path")
				}
				i++
				continue
			}
			header := i
			i++
			var movePath string
			if i < end && strings.HasPrefix(lines[i], movePrefix) {
				movePath = headerPath(lines[i], movePrefix)
				i++
			}
			if movePath == path {
				movePath = ""
			}
			chunks, next, err := p.parseUpdateChunks(lines, i, end)
			if err != nil {
				return nil, err
			}
			if len(chunks) == 0 {
				return nil, parseErrorf(header+1, "update of %s has no chunks", path)
			}
			hunks = append(hunks, &UpdateFile{Path: path, MovePath: movePath, Chunks: chunks})
			i = next

		default:
			if p.Strict && strings.TrimSpace(line) != "" {
				return nil, parseErrorf(i+1, "unexpected line %q: expected a file header", line)
			}
			i++
		}
	}

	if len(hunks) == 0 {
		for _, line := range lines[begin+1 : end] {
			if strings.TrimSpace(line) != "" {
				return nil, &ParseError{Msg: "no hunks found"}
			}
		}
		return nil, &ParseError{Msg: "empty patch"}
	}
	return hunks, nil
}

// parseAddContents collects "+" lines up to the next "***" line
func (p *Parser) parseAddContents(lines []string, i, end int) (string, int, error) {
	var content []string
	for ; i < end && !strings.HasPrefix(lines[i], "***"); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "+") {
			content = append(content, line[1:])
			continue
		}
		if p.Strict {
			return "", i, parseErrorf(i+1, "added file lines must start with '+': %q", line)
		}
	}
	return strings.Join(content, "\n"), i, nil
}

// parseUpdateChunks reads "@@" chunks up to the next record header
func (p *Parser) parseUpdateChunks(lines []string, i, end int) ([]Chunk, int, error) {
	var chunks []Chunk
	var current *Chunk

	flush := func() {
		if current != nil {
			chunks = append(chunks, *current)
			current = nil
		}
	}

	for ; i < end; i++ {
		line := lines[i]
		switch {
		case strings.TrimSpace(line) == eofMarker:
			if current == nil {
				if p.Strict {
					return nil, i, parseErrorf(i+1, "%s outside of a chunk", eofMarker)
				}
				continue
			}
			current.EOF = true
			flush()

		case strings.HasPrefix(line, "***"):
			flush()
			return chunks, i, nil

		case strings.HasPrefix(line, "@@"):
			flush()
			current = &Chunk{}
			anchor := strings.TrimSpace(line[2:])
			if anchor != "" && !unifiedRangeRegex.MatchString(anchor) {
				current.Context = anchor
				current.HasContext = true
			}

		case line == "":
			// a blank line inside a chunk is an unchanged empty line
			if current != nil {
				current.OldLines = append(current.OldLines, "")
				current.NewLines = append(current.NewLines, "")
			}

		case line[0] == ' ' || line[0] == '-' || line[0] == '+':
			if current == nil {
				// change lines before any "@@" start an anchor-less chunk
				current = &Chunk{}
			}
			text := line[1:]
			switch line[0] {
			case ' ':
				current.OldLines = append(current.OldLines, text)
				current.NewLines = append(current.NewLines, text)
			case '-':
				current.OldLines = append(current.OldLines, text)
			case '+':
				current.NewLines = append(current.NewLines, text)
			}

		default:
			if p.Strict {
				return nil, i, parseErrorf(i+1, "chunk lines must start with ' ', '-' or '+': %q", line)
			}
		}
	}
	flush()
	return chunks, i, nil
}

func headerPath(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// StripHeredoc unwraps `cat <<'EOF' ... EOF` style wrappers; other text is
// returned unchanged
func StripHeredoc(text string) string {
	first, rest, ok := strings.Cut(text, "\n")
	if !ok {
		return text
	}
	m := heredocHeaderRegex.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return text
	}
	body, last := "", rest
	if idx := strings.LastIndex(rest, "\n"); idx >= 0 {
		body, last = rest[:idx], rest[idx+1:]
	}
	if strings.TrimSpace(last) != m[1] {
		return text
	}
	return body
}
