package object

import (
	"errors"
	"testing"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

func TestTreeBuilderValidatesNames(t *testing.T) {
	s := tempStore(t)
	blob, err := s.WriteBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	b := NewTreeBuilder(s, nil)
	for _, name := range []string{"", ".", "..", ".git", ".GIT", "a/b", "nul\x00"} {
		if err := b.Insert(name, blob, ModeBlob); !errors.Is(err, giterr.ErrInvalidArgument) {
			t.Errorf("Insert(%q) = %v, want invalid argument", name, err)
		}
	}
	if err := b.Insert("ok", blob, FileMode(0o100600)); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Errorf("bad mode accepted: %v", err)
	}
}

func TestTreeBuilderChecksObjects(t *testing.T) {
	s := tempStore(t)
	blob, _ := s.WriteBlob(&Blob{Data: []byte("x")})
	absent := HashObject(SHA1, TypeBlob, []byte("absent"))

	b := NewTreeBuilder(s, nil)
	if err := b.Insert("missing", absent, ModeBlob); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("missing object: %v", err)
	}
	if err := b.Insert("dir", blob, ModeTree); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("type mismatch: %v", err)
	}
	if err := b.Insert("sub", absent, ModeGitlink); err != nil {
		t.Fatalf("gitlinks are not checked: %v", err)
	}

	b.SkipExistenceCheck = true
	if err := b.Insert("missing", absent, ModeBlob); err != nil {
		t.Fatalf("SkipExistenceCheck: %v", err)
	}
}

func TestTreeBuilderWriteSortsAndSeeds(t *testing.T) {
	s := tempStore(t)
	blob, _ := s.WriteBlob(&Blob{Data: []byte("x")})
	empty, err := NewTreeBuilder(s, nil).Write()
	if err != nil {
		t.Fatal(err)
	}
	if empty != SHA1.EmptyTree() {
		t.Fatalf("empty tree = %s", empty)
	}

	b := NewTreeBuilder(s, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := b.Insert(name, blob, ModeBlob); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Insert("lib", empty, ModeTree); err != nil {
		t.Fatal(err)
	}
	h, err := b.Write()
	if err != nil {
		t.Fatal(err)
	}
	tr, err := s.ReadTree(h)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "lib", "mid", "zeta"}
	for i, e := range tr.Entries {
		if e.Name != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Name, want[i])
		}
	}

	seeded := NewTreeBuilder(s, tr)
	if seeded.Len() != 4 {
		t.Fatalf("seeded Len = %d", seeded.Len())
	}
	if err := seeded.Remove("mid"); err != nil {
		t.Fatal(err)
	}
	if err := seeded.Remove("mid"); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("second Remove: %v", err)
	}
	seeded.Filter(func(e TreeEntry) bool { return e.Mode == ModeTree })
	if _, ok := seeded.Get("lib"); ok {
		t.Fatal("Filter kept tree entry")
	}
	if seeded.Len() != 2 {
		t.Fatalf("Len after filter = %d", seeded.Len())
	}
	seeded.Clear()
	if seeded.Len() != 0 {
		t.Fatal("Clear left entries")
	}
}
