package patch

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse_AddFile(t *testing.T) {
	hunks, err := Parse("*** Begin Patch\n*** Add File: a.txt\n+hello\n*** End Patch")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(hunks) != 1 {
		t.Fatalf("Parse() returned %d hunks, want 1", len(hunks))
	}
	add, ok := hunks[0].(*AddFile)
	if !ok {
		t.Fatalf("hunk type = %T, want *AddFile", hunks[0])
	}
	if add.Path != "a.txt" || add.Contents != "hello" {
		t.Errorf("AddFile = %+v, want path a.txt contents %q", add, "hello")
	}
}

func TestParse_MixedOperations(t *testing.T) {
	patch := `*** Begin Patch
*** Add File: docs/new.md
+# Title
+
+body
*** Update File: src/app.go
*** Move to: src/main.go
@@ func main() {
 	a := 1
-	b := 2
+	b := 3
@@
-last
+final
*** End of File
*** Delete File: old.txt
*** End Patch`

	hunks, err := Parse(patch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(hunks) != 3 {
		t.Fatalf("Parse() returned %d hunks, want 3", len(hunks))
	}

	add := hunks[0].(*AddFile)
	if add.Contents != "# Title\n\nbody" {
		t.Errorf("AddFile.Contents = %q", add.Contents)
	}

	update, ok := hunks[1].(*UpdateFile)
	if !ok {
		t.Fatalf("hunk[1] type = %T, want *UpdateFile", hunks[1])
	}
	if update.Path != "src/app.go" || update.MovePath != "src/main.go" {
		t.Errorf("UpdateFile paths = %q -> %q", update.Path, update.MovePath)
	}
	want := []Chunk{
		{
			OldLines:   []string{"\ta := 1", "\tb := 2"},
			NewLines:   []string{"\ta := 1", "\tb := 3"},
			Context:    "func main() {",
			HasContext: true,
		},
		{
			OldLines: []string{"last"},
			NewLines: []string{"final"},
			EOF:      true,
		},
	}
	if !reflect.DeepEqual(update.Chunks, want) {
		t.Errorf("UpdateFile.Chunks = %#v\nwant %#v", update.Chunks, want)
	}

	del, ok := hunks[2].(*DeleteFile)
	if !ok || del.Path != "old.txt" {
		t.Errorf("hunk[2] = %#v, want delete of old.txt", hunks[2])
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		patch   string
		wantMsg string
	}{
		{
			name:    "missing begin",
			patch:   "*** Add File: a.txt\n+x\n*** End Patch",
			wantMsg: "markers",
		},
		{
			name:    "missing end",
			patch:   "*** Begin Patch\n*** Add File: a.txt\n+x",
			wantMsg: "markers",
		},
		{
			name:    "markers out of order",
			patch:   "*** End Patch\n*** Begin Patch",
			wantMsg: "markers",
		},
		{
			name:    "empty patch",
			patch:   "*** Begin Patch\n*** End Patch",
			wantMsg: "empty patch",
		},
		{
			name:    "only unrecognized lines",
			patch:   "*** Begin Patch\nhello there\n*** End Patch",
			wantMsg: "no hunks found",
		},
		{
			name:    "update without chunks",
			patch:   "*** Begin Patch\n*** Update File: a.txt\n*** End Patch",
			wantMsg: "has no chunks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.patch)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if !strings.Contains(perr.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", perr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParse_HeredocWrapper(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{"cat with quotes", "cat <<'EOF'\n*** Begin Patch\n*** Delete File: x.txt\n*** End Patch\nEOF"},
		{"bare heredoc", "<<PATCH\n*** Begin Patch\n*** Delete File: x.txt\n*** End Patch\nPATCH"},
		{"double quotes", "<<\"EOF\"\n*** Begin Patch\n*** Delete File: x.txt\n*** End Patch\nEOF\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hunks, err := Parse(tt.patch)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(hunks) != 1 || hunks[0].TargetPath() != "x.txt" {
				t.Errorf("Parse() = %#v, want one hunk for x.txt", hunks)
			}
		})
	}
}

func TestStripHeredoc_MismatchedTag(t *testing.T) {
	in := "<<'EOF'\nbody\nEND"
	if got := StripHeredoc(in); got != in {
		t.Errorf("StripHeredoc() = %q, want input unchanged", got)
	}
}

func TestParse_LenientSkipsUnknownHeaders(t *testing.T) {
	patch := "*** Begin Patch\n\n*** Frobnicate File: x\n*** Delete File: y\n*** End Patch"

	hunks, err := Parse(patch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(hunks) != 1 || hunks[0].TargetPath() != "y" {
		t.Errorf("Parse() = %#v, want only the delete of y", hunks)
	}
}

func TestParse_StrictRejectsUnknownHeaders(t *testing.T) {
	patch := "*** Begin Patch\n*** Frobnicate File: x\n*** Delete File: y\n*** End Patch"

	_, err := (&Parser{Strict: true}).Parse(patch)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	if perr.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", perr.Line)
	}
}

func TestParse_StrictRejectsUnprefixedChunkLine(t *testing.T) {
	patch := "*** Begin Patch\n*** Update File: a.txt\n@@\n-old\nnew\n*** End Patch"

	if _, err := Parse(patch); err != nil {
		t.Fatalf("lenient Parse() error = %v", err)
	}
	if _, err := (&Parser{Strict: true}).Parse(patch); err == nil {
		t.Fatal("strict Parse() expected error for unprefixed line")
	}
}

func TestParse_ChunkShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		chunk Chunk
	}{
		{
			name:  "unified range header carries no anchor",
			body:  "@@ -1 +1 @@\n-hello\n+hi",
			chunk: Chunk{OldLines: []string{"hello"}, NewLines: []string{"hi"}},
		},
		{
			name:  "change lines before the first @@",
			body:  " keep\n-drop\n+add",
			chunk: Chunk{OldLines: []string{"keep", "drop"}, NewLines: []string{"keep", "add"}},
		},
		{
			name:  "blank line is an unchanged empty line",
			body:  "@@ anchor\n a\n\n-b\n+c",
			chunk: Chunk{OldLines: []string{"a", "", "b"}, NewLines: []string{"a", "", "c"}, Context: "anchor", HasContext: true},
		},
		{
			name:  "pure insertion",
			body:  "@@\n+one\n+two",
			chunk: Chunk{NewLines: []string{"one", "two"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hunks, err := Parse("*** Begin Patch\n*** Update File: f.txt\n" + tt.body + "\n*** End Patch")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			update := hunks[0].(*UpdateFile)
			if len(update.Chunks) != 1 {
				t.Fatalf("got %d chunks, want 1", len(update.Chunks))
			}
			if !reflect.DeepEqual(update.Chunks[0], tt.chunk) {
				t.Errorf("chunk = %#v\nwant %#v", update.Chunks[0], tt.chunk)
			}
		})
	}
}

func TestParse_CRLFAndMoveToSamePath(t *testing.T) {
	patch := "*** Begin Patch\r\n*** Update File: a.txt\r\n*** Move to: a.txt\r\n@@\r\n-x\r\n+y\r\n*** End Patch\r\n"

	hunks, err := Parse(patch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	update := hunks[0].(*UpdateFile)
	if update.MovePath != "" {
		t.Errorf("MovePath = %q, want empty for a move onto the same path", update.MovePath)
	}
	if !reflect.DeepEqual(update.Chunks[0].OldLines, []string{"x"}) {
		t.Errorf("OldLines = %q, want [x] without carriage returns", update.Chunks[0].OldLines)
	}
}

func TestParse_PreservesDocumentOrder(t *testing.T) {
	patch := `*** Begin Patch
*** Delete File: c
*** Add File: a
+1
*** Update File: b
@@
-x
+y
*** Add File: d
*** End Patch`

	hunks, err := Parse(patch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var got []string
	for _, h := range hunks {
		got = append(got, h.TargetPath())
	}
	if want := []string{"c", "a", "b", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if add := hunks[3].(*AddFile); add.Contents != "" {
		t.Errorf("empty add contents = %q, want empty string", add.Contents)
	}
}
