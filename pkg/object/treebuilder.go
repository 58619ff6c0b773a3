package object

import (
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// TreeBuilder accumulates the entries of one directory level and writes
// them as a tree object. It is the only place trees are assembled, so
// every written tree is validated and correctly ordered.
type TreeBuilder struct {
	store   *Store
	entries map[string]TreeEntry

	// SkipExistenceCheck disables the check that inserted ids name an
	// existing object of the kind the mode implies.
	SkipExistenceCheck bool
}

// NewTreeBuilder returns a builder seeded with the entries of source, or
// empty when source is nil.
func NewTreeBuilder(store *Store, source *Tree) *TreeBuilder {
	b := &TreeBuilder{store: store, entries: make(map[string]TreeEntry)}
	if source != nil {
		for _, e := range source.Entries {
			b.entries[e.Name] = e
		}
	}
	return b
}

// ValidEntryName reports whether name may appear as a single tree entry.
func ValidEntryName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	if strings.EqualFold(name, ".git") {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

// Insert adds or replaces the entry called name.
func (b *TreeBuilder) Insert(name string, h Hash, mode FileMode) error {
	if !ValidEntryName(name) {
		return giterr.Newf("tree insert", name, giterr.ErrInvalidArgument, "invalid entry name")
	}
	if !mode.IsValid() {
		return giterr.Newf("tree insert", name, giterr.ErrInvalidArgument, "invalid mode %o", uint32(mode))
	}
	if len(h) != b.store.algo.HexSize() || !isHex(string(h)) {
		return giterr.Newf("tree insert", name, giterr.ErrInvalidArgument, "invalid id %q", h)
	}
	if !b.SkipExistenceCheck && mode != ModeGitlink {
		objType, _, err := b.store.ReadHeader(h)
		if err != nil {
			return giterr.Wrap("tree insert", name, err)
		}
		if objType != mode.ObjectType() {
			return giterr.Newf("tree insert", name, giterr.ErrInvalidArgument, "mode %s expects %s, id names %s", mode, mode.ObjectType(), objType)
		}
	}
	b.entries[name] = TreeEntry{Name: name, Mode: mode, Hash: h}
	return nil
}

// Remove deletes the entry called name.
func (b *TreeBuilder) Remove(name string) error {
	if _, ok := b.entries[name]; !ok {
		return giterr.New("tree remove", name, giterr.ErrNotFound)
	}
	delete(b.entries, name)
	return nil
}

// Get returns the entry called name.
func (b *TreeBuilder) Get(name string) (TreeEntry, bool) {
	e, ok := b.entries[name]
	return e, ok
}

func (b *TreeBuilder) Len() int { return len(b.entries) }

func (b *TreeBuilder) Clear() { clear(b.entries) }

// Filter removes every entry for which drop returns true.
func (b *TreeBuilder) Filter(drop func(TreeEntry) bool) {
	for name, e := range b.entries {
		if drop(e) {
			delete(b.entries, name)
		}
	}
}

// Entries returns the current entries in tree order.
func (b *TreeBuilder) Entries() []TreeEntry {
	out := make([]TreeEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	SortTreeEntries(out)
	return out
}

// Write stores the tree and returns its id.
func (b *TreeBuilder) Write() (Hash, error) {
	return b.store.WriteTree(&Tree{Entries: b.Entries()})
}
