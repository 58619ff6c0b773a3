package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

// ReadTree replaces the index content with the flattened stage-0 entries
// of tree. Entries whose path, id and mode are unchanged keep their cached
// stat data.
func (idx *Index) ReadTree(store *object.Store, tree object.Hash) error {
	old := make(map[string]Entry, len(idx.entries))
	for _, e := range idx.entries {
		if e.Stage == StageNormal {
			old[e.Path] = e
		}
	}

	var entries []Entry
	var walk func(h object.Hash, prefix string) error
	walk = func(h object.Hash, prefix string) error {
		tr, err := store.ReadTree(h)
		if err != nil {
			return fmt.Errorf("read tree %s: %w", h, err)
		}
		for _, te := range tr.Entries {
			p := te.Name
			if prefix != "" {
				p = prefix + "/" + te.Name
			}
			if te.Mode == object.ModeTree {
				if err := walk(te.Hash, p); err != nil {
					return err
				}
				continue
			}
			e := Entry{Path: p, Mode: te.Mode, Hash: te.Hash}
			if prev, ok := old[p]; ok && prev.Hash == te.Hash && prev.Mode == te.Mode {
				e = prev
			}
			entries = append(entries, e)
		}
		return nil
	}
	if err := walk(tree, ""); err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	idx.entries = entries
	return nil
}

// WriteTree writes the stage-0 entries as nested tree objects and returns
// the root id. Intent-to-add entries are left out. An index with conflict
// stages fails with giterr.ErrUnresolvedConflicts.
func (idx *Index) WriteTree(store *object.Store) (object.Hash, error) {
	if idx.HasConflicts() {
		return "", giterr.New("write tree", "", giterr.ErrUnresolvedConflicts)
	}
	if store.Algorithm() != idx.algo {
		return "", giterr.Newf("write tree", "", giterr.ErrInvalidArgument, "store uses %s, index uses %s", store.Algorithm(), idx.algo)
	}
	files := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		if !e.IntentToAdd {
			files = append(files, e)
		}
	}
	return writeTreeLevel(store, files, "")
}

// writeTreeLevel builds the tree for the directory prefix from the sorted
// entries that all live under it.
func writeTreeLevel(store *object.Store, entries []Entry, prefix string) (object.Hash, error) {
	b := object.NewTreeBuilder(store, nil)
	for i := 0; i < len(entries); {
		rel := strings.TrimPrefix(entries[i].Path, prefix)
		name, _, isDir := strings.Cut(rel, "/")
		if !isDir {
			e := entries[i]
			if err := b.Insert(name, e.Hash, e.Mode); err != nil {
				return "", fmt.Errorf("write tree %q: %w", e.Path, err)
			}
			i++
			continue
		}

		sub := prefix + name + "/"
		j := i
		for j < len(entries) && strings.HasPrefix(entries[j].Path, sub) {
			j++
		}
		h, err := writeTreeLevel(store, entries[i:j], sub)
		if err != nil {
			return "", err
		}
		if err := b.Insert(name, h, object.ModeTree); err != nil {
			return "", fmt.Errorf("write tree %q: %w", strings.TrimSuffix(sub, "/"), err)
		}
		i = j
	}
	h, err := b.Write()
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}
