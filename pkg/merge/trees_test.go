package merge

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/odvcencio/gitcore/pkg/diff3"
	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// exec marks a file as executable in the maps passed to writeTree.
const exec = "#!exec\n"

func writeTree(t *testing.T, s *object.Store, files map[string]string) object.Hash {
	t.Helper()
	idx := index.New(s.Algorithm())
	for p, content := range files {
		mode := object.ModeBlob
		if rest, ok := strings.CutPrefix(content, exec); ok {
			mode, content = object.ModeExecutable, rest
		}
		h, err := s.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatal(err)
		}
		if err := idx.Add(index.Entry{Path: p, Mode: mode, Hash: h}); err != nil {
			t.Fatal(err)
		}
	}
	h, err := idx.WriteTree(s)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// summary renders an index as "path:stage=content" lines.
func summary(t *testing.T, s *object.Store, idx *index.Index) []string {
	t.Helper()
	var out []string
	for _, e := range idx.Entries() {
		b, err := s.ReadBlob(e.Hash)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, fmt.Sprintf("%s:%d=%s", e.Path, e.Stage, b.Data))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustMerge(t *testing.T, s *object.Store, anc, ours, theirs object.Hash, opts Options) *index.Index {
	t.Helper()
	idx, err := Trees(s, anc, ours, theirs, opts)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestTreesOneSidedChangesEqualTheChangedTree(t *testing.T) {
	s := object.NewStore(t.TempDir())
	a := writeTree(t, s, map[string]string{"a": "1\n", "dir/b": "2\n", "gone": "x\n"})
	b := writeTree(t, s, map[string]string{"a": "1\n", "dir/b": "3\n", "dir/c": "4\n", "new": exec + "n\n"})

	for _, findRenames := range []bool{false, true} {
		opts := Options{FindRenames: findRenames}
		for name, idx := range map[string]*index.Index{
			"(A,A,B)": mustMerge(t, s, a, a, b, opts),
			"(A,B,B)": mustMerge(t, s, a, b, b, opts),
		} {
			if idx.HasConflicts() {
				t.Fatalf("%s: unexpected conflicts", name)
			}
			got, err := idx.WriteTree(s)
			if err != nil {
				t.Fatal(err)
			}
			if got != b {
				t.Errorf("%s renames=%v: tree %s, want %s (%v)", name, findRenames, got, b, summary(t, s, idx))
			}
		}
	}
}

func TestTreesMergesContent(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"f": "1\n2\n3\n"})
	ours := writeTree(t, s, map[string]string{"f": "X\n2\n3\n"})
	theirs := writeTree(t, s, map[string]string{"f": "1\n2\nY\n"})

	idx := mustMerge(t, s, anc, ours, theirs, Options{})
	if got, want := summary(t, s, idx), []string{"f:0=X\n2\nY\n"}; !equalStrings(got, want) {
		t.Fatalf("merge = %q, want %q", got, want)
	}
}

func TestTreesRecordsConflictStages(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"f": "base\n", "md": "m\n", "both": "b\n", "keep": "k\n"})
	ours := writeTree(t, s, map[string]string{"f": "ours\n", "md": "m2\n", "added": "o\n", "keep": "k\n"})
	theirs := writeTree(t, s, map[string]string{"f": "theirs\n", "added": "t\n", "keep": "k\n"})

	idx := mustMerge(t, s, anc, ours, theirs, Options{})
	want := []string{
		"added:2=o\n", "added:3=t\n", // add/add
		"f:1=base\n", "f:2=ours\n", "f:3=theirs\n", // content conflict
		"keep:0=k\n",
		"md:1=m\n", "md:2=m2\n", // modify/delete
	}
	if got := summary(t, s, idx); !equalStrings(got, want) {
		t.Fatalf("merge =\n%q\nwant\n%q", got, want)
	}
	if _, err := idx.WriteTree(s); !errors.Is(err, giterr.ErrUnresolvedConflicts) {
		t.Fatalf("WriteTree = %v", err)
	}
	c, err := idx.Conflict("md")
	if err != nil {
		t.Fatal(err)
	}
	if c.Ancestor == nil || c.Ours == nil || c.Theirs != nil {
		t.Fatalf("modify/delete conflict = %+v", c)
	}
}

func TestTreesIdenticalAddsAndDeletesAreClean(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"old": "o\n"})
	ours := writeTree(t, s, map[string]string{"same": "s\n"})
	theirs := writeTree(t, s, map[string]string{"same": "s\n"})

	idx := mustMerge(t, s, anc, ours, theirs, Options{})
	if got, want := summary(t, s, idx), []string{"same:0=s\n"}; !equalStrings(got, want) {
		t.Fatalf("merge = %q, want %q", got, want)
	}
}

func TestTreesFileFavorAndFailOnConflict(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"f": "a\nb\nc\n"})
	ours := writeTree(t, s, map[string]string{"f": "a\nO\nc\n"})
	theirs := writeTree(t, s, map[string]string{"f": "a\nT\nc\n"})

	idx := mustMerge(t, s, anc, ours, theirs, Options{FileFavor: diff3.FavorUnion})
	if got, want := summary(t, s, idx), []string{"f:0=a\nO\nT\nc\n"}; !equalStrings(got, want) {
		t.Fatalf("union = %q, want %q", got, want)
	}

	if _, err := Trees(s, anc, ours, theirs, Options{FailOnConflict: true}); !errors.Is(err, giterr.ErrMergeConflict) {
		t.Fatalf("FailOnConflict err = %v", err)
	}
}

func TestTreesMergesModes(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"run": "v1\n"})
	ours := writeTree(t, s, map[string]string{"run": exec + "v1\n"})
	theirs := writeTree(t, s, map[string]string{"run": "v2\n"})

	idx := mustMerge(t, s, anc, ours, theirs, Options{})
	e, ok := idx.Get("run", index.StageNormal)
	if !ok {
		t.Fatalf("run not resolved: %v", summary(t, s, idx))
	}
	if e.Mode != object.ModeExecutable || e.Hash != object.HashObject(object.SHA1, object.TypeBlob, []byte("v2\n")) {
		t.Fatalf("run = %o %s", e.Mode, e.Hash)
	}
}

func TestTreesDirectoryFileConflict(t *testing.T) {
	s := object.NewStore(t.TempDir())
	ours := writeTree(t, s, map[string]string{"a": "file\n"})
	theirs := writeTree(t, s, map[string]string{"a/x": "dir\n"})

	idx := mustMerge(t, s, "", ours, theirs, Options{})
	if got, want := summary(t, s, idx), []string{"a:2=file\n", "a/x:0=dir\n"}; !equalStrings(got, want) {
		t.Fatalf("merge = %q, want %q", got, want)
	}
}

func TestTreesBinaryConflict(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"img": "\x00base"})
	ours := writeTree(t, s, map[string]string{"img": "\x00ours"})
	theirs := writeTree(t, s, map[string]string{"img": "\x00theirs"})

	if idx := mustMerge(t, s, anc, ours, theirs, Options{}); !idx.HasConflicts() {
		t.Fatal("binary change on both sides must conflict")
	}
	idx := mustMerge(t, s, anc, ours, theirs, Options{FileFavor: diff3.FavorOurs})
	if got, want := summary(t, s, idx), []string{"img:0=\x00ours"}; !equalStrings(got, want) {
		t.Fatalf("favor ours = %q, want %q", got, want)
	}
}

func numbered(n int, edit map[int]string) string {
	var b strings.Builder
	for i := range n {
		if l, ok := edit[i]; ok {
			b.WriteString(l + "\n")
			continue
		}
		fmt.Fprintf(&b, "line-%02d\n", i)
	}
	return b.String()
}

func TestTreesFollowsExactRename(t *testing.T) {
	s := object.NewStore(t.TempDir())
	orig := numbered(10, nil)
	edited := numbered(10, map[int]string{9: "THEIRS"})
	anc := writeTree(t, s, map[string]string{"old.txt": orig})
	ours := writeTree(t, s, map[string]string{"new.txt": orig})
	theirs := writeTree(t, s, map[string]string{"old.txt": edited})

	idx := mustMerge(t, s, anc, ours, theirs, Options{FindRenames: true})
	if got, want := summary(t, s, idx), []string{"new.txt:0=" + edited}; !equalStrings(got, want) {
		t.Fatalf("rename merge = %q, want %q", got, want)
	}

	// Without detection the same merge is a modify/delete plus an add.
	idx = mustMerge(t, s, anc, ours, theirs, Options{})
	want := []string{"new.txt:0=" + orig, "old.txt:1=" + orig, "old.txt:3=" + edited}
	if got := summary(t, s, idx); !equalStrings(got, want) {
		t.Fatalf("no renames = %q, want %q", got, want)
	}
}

func TestTreesFollowsSimilarRename(t *testing.T) {
	s := object.NewStore(t.TempDir())
	anc := writeTree(t, s, map[string]string{"old.txt": numbered(10, nil)})
	ours := writeTree(t, s, map[string]string{"new.txt": numbered(10, map[int]string{0: "OURS"})})
	theirs := writeTree(t, s, map[string]string{"old.txt": numbered(10, map[int]string{9: "THEIRS"})})

	idx := mustMerge(t, s, anc, ours, theirs, Options{FindRenames: true})
	want := []string{"new.txt:0=" + numbered(10, map[int]string{0: "OURS", 9: "THEIRS"})}
	if got := summary(t, s, idx); !equalStrings(got, want) {
		t.Fatalf("similar rename = %q, want %q", got, want)
	}

	// A threshold above the similarity disables the pairing.
	idx = mustMerge(t, s, anc, ours, theirs, Options{FindRenames: true, RenameThreshold: 95})
	if !idx.HasConflicts() {
		t.Fatal("expected modify/delete conflict when rename is below threshold")
	}
}

func TestTreesRenameConflicts(t *testing.T) {
	s := object.NewStore(t.TempDir())
	orig := numbered(4, nil)
	anc := writeTree(t, s, map[string]string{"old": orig})

	// rename/delete
	ours := writeTree(t, s, map[string]string{"new": orig})
	theirs := writeTree(t, s, map[string]string{})
	idx := mustMerge(t, s, anc, ours, theirs, Options{FindRenames: true})
	if got, want := summary(t, s, idx), []string{"new:1=" + orig, "new:2=" + orig}; !equalStrings(got, want) {
		t.Fatalf("rename/delete = %q, want %q", got, want)
	}

	// rename/rename to different names
	ours = writeTree(t, s, map[string]string{"a": orig})
	theirs = writeTree(t, s, map[string]string{"b": orig})
	idx = mustMerge(t, s, anc, ours, theirs, Options{FindRenames: true})
	if got, want := summary(t, s, idx), []string{"a:2=" + orig, "b:3=" + orig, "old:1=" + orig}; !equalStrings(got, want) {
		t.Fatalf("rename/rename = %q, want %q", got, want)
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity(nil, nil); got != 100 {
		t.Errorf("empty = %d", got)
	}
	if got := similarity([]byte("a\nb\n"), []byte("a\nb\n")); got != 100 {
		t.Errorf("identical = %d", got)
	}
	if got := similarity([]byte("a\nb\n"), []byte("c\nd\n")); got != 0 {
		t.Errorf("disjoint = %d", got)
	}
	if got := similarity([]byte("a\nb\n"), []byte("a\nc\n")); got != 50 {
		t.Errorf("half = %d", got)
	}
}
