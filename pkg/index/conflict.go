package index

import (
	"github.com/odvcencio/gitcore/pkg/giterr"
)

// Conflict groups the stages recorded for one unresolved path. A nil side
// is absent (added on one side only, or deleted on one side).
type Conflict struct {
	Path     string
	Ancestor *Entry
	Ours     *Entry
	Theirs   *Entry
}

// AddConflict records a conflict for the path shared by the non-nil
// sides, replacing the path's stage-0 entry and any earlier conflict.
func (idx *Index) AddConflict(ancestor, ours, theirs *Entry) error {
	sides := [3]*Entry{ancestor, ours, theirs}
	path := ""
	for _, s := range sides {
		if s == nil {
			continue
		}
		if path == "" {
			path = s.Path
		} else if s.Path != path {
			return giterr.Newf("add conflict", s.Path, giterr.ErrInvalidArgument, "sides name different paths")
		}
	}
	if path == "" {
		return giterr.Newf("add conflict", "", giterr.ErrInvalidArgument, "no sides given")
	}

	staged := make([]Entry, 0, 3)
	for i, s := range sides {
		if s == nil {
			continue
		}
		e := *s
		e.Stage = Stage(i + 1)
		if err := idx.checkEntry("add conflict", &e); err != nil {
			return err
		}
		staged = append(staged, e)
	}

	idx.removeStages(path, func(Stage) bool { return true })
	for _, e := range staged {
		idx.insert(e)
	}
	return nil
}

// Conflict returns the stages recorded for path.
func (idx *Index) Conflict(path string) (Conflict, error) {
	lo, hi := idx.pathRange(path)
	c := Conflict{Path: path}
	found := false
	for i := lo; i < hi; i++ {
		e := idx.entries[i]
		switch e.Stage {
		case StageAncestor:
			c.Ancestor = &e
		case StageOurs:
			c.Ours = &e
		case StageTheirs:
			c.Theirs = &e
		default:
			continue
		}
		found = true
	}
	if !found {
		return Conflict{}, giterr.New("conflict", path, giterr.ErrNotFound)
	}
	return c, nil
}

// Conflicts returns every unresolved path in index order.
func (idx *Index) Conflicts() []Conflict {
	var out []Conflict
	for i := 0; i < len(idx.entries); {
		e := idx.entries[i]
		if e.Stage == StageNormal {
			i++
			continue
		}
		c, _ := idx.Conflict(e.Path)
		out = append(out, c)
		_, hi := idx.pathRange(e.Path)
		i = hi
	}
	return out
}

// RemoveConflict drops every conflict stage for path.
func (idx *Index) RemoveConflict(path string) error {
	if _, err := idx.Conflict(path); err != nil {
		return giterr.New("remove conflict", path, giterr.ErrNotFound)
	}
	idx.removeStages(path, func(s Stage) bool { return s != StageNormal })
	return nil
}

// HasConflicts reports whether any entry has a stage above 0.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.entries {
		if e.Stage != StageNormal {
			return true
		}
	}
	return false
}

// CleanupConflicts drops every conflict stage, leaving stage-0 entries.
func (idx *Index) CleanupConflicts() {
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.Stage == StageNormal {
			kept = append(kept, e)
		}
	}
	idx.entries = kept
}
