package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

// MatchedPathFunc is consulted for every path a bulk operation is about to
// change, with the pathspec item that selected it. Returning skip leaves
// the path alone; returning an error aborts the whole operation and leaves
// the index as it was.
type MatchedPathFunc func(path, matchedSpec string) (skip bool, err error)

// Worktree is the file tree index operations stage content from.
type Worktree struct {
	FS    billy.Filesystem
	Store *object.Store

	// Ignore excludes untracked paths from AddAll. Nil ignores only .git.
	Ignore *IgnoreChecker
	// TrustExecutable takes the executable bit from the filesystem
	// (core.filemode). Otherwise a tracked path keeps its recorded mode.
	TrustExecutable bool
	// Force makes AddAll stage ignored files too.
	Force bool
}

// NewWorktree returns a worktree over fsys that honors .gitignore files
// and the executable bit.
func NewWorktree(fsys billy.Filesystem, store *object.Store) *Worktree {
	return &Worktree{FS: fsys, Store: store, Ignore: NewIgnoreChecker(), TrustExecutable: true}
}

// readFile hashes the worktree file at p into the store and returns the
// entry it would stage. prev is the currently tracked entry, if any.
func (wt *Worktree) readFile(p string, prev *Entry, write bool) (Entry, error) {
	fi, err := wt.FS.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, giterr.New("stage", p, giterr.ErrNotFound)
		}
		return Entry{}, fmt.Errorf("stage %s: %w", p, err)
	}

	var data []byte
	mode := object.ModeBlob
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := wt.FS.Readlink(p)
		if err != nil {
			return Entry{}, fmt.Errorf("stage %s: readlink: %w", p, err)
		}
		data = []byte(target)
		mode = object.ModeSymlink
	case fi.IsDir():
		return Entry{}, giterr.Newf("stage", p, giterr.ErrInvalidArgument, "is a directory")
	default:
		data, err = util.ReadFile(wt.FS, p)
		if err != nil {
			return Entry{}, fmt.Errorf("stage %s: %w", p, err)
		}
		if wt.TrustExecutable {
			if fi.Mode()&0o111 != 0 {
				mode = object.ModeExecutable
			}
		} else if prev != nil && prev.Mode == object.ModeExecutable {
			mode = object.ModeExecutable
		}
	}

	var h object.Hash
	if write {
		h, err = wt.Store.Write(object.TypeBlob, data)
		if err != nil {
			return Entry{}, fmt.Errorf("stage %s: %w", p, err)
		}
	} else {
		h = wt.Store.Hash(object.TypeBlob, data)
	}
	return Entry{
		Path:  p,
		Mode:  mode,
		Hash:  h,
		Size:  uint32(fi.Size()),
		MTime: fi.ModTime(),
	}, nil
}

type worktreeFile struct {
	path    string
	ignored bool
}

// scan lists every file below the root in path order, loading .gitignore
// files on the way. Nested repositories are not entered.
func (wt *Worktree) scan() ([]worktreeFile, error) {
	ic := wt.Ignore
	if ic == nil {
		ic = NewIgnoreChecker()
	}
	var out []worktreeFile
	var walk func(dir string, ignored bool) error
	walk = func(dir string, ignored bool) error {
		if err := ic.LoadDir(wt.FS, dir); err != nil {
			return fmt.Errorf("scan worktree: %w", err)
		}
		infos, err := wt.FS.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("scan worktree %q: %w", dir, err)
		}
		for _, fi := range infos {
			p := path.Join(dir, fi.Name())
			if fi.Name() == ".git" {
				continue
			}
			if fi.IsDir() {
				if _, err := wt.FS.Lstat(path.Join(p, ".git")); err == nil {
					continue
				}
				if err := walk(p, ignored || ic.IsIgnored(p, true)); err != nil {
					return err
				}
				continue
			}
			if !ValidPath(p) {
				continue
			}
			out = append(out, worktreeFile{path: p, ignored: ignored || ic.IsIgnored(p, false)})
		}
		return nil
	}
	if err := walk("", false); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// AddByPath stages the worktree file at p, ignore rules notwithstanding.
func (idx *Index) AddByPath(wt *Worktree, p string) error {
	if !ValidPath(p) {
		return giterr.Newf("add", p, giterr.ErrInvalidArgument, "invalid path")
	}
	var prev *Entry
	if e, ok := idx.Get(p, StageNormal); ok {
		prev = &e
	}
	e, err := wt.readFile(p, prev, true)
	if err != nil {
		return err
	}
	return idx.Add(e)
}

type plannedChange struct {
	path   string
	spec   string
	remove bool
}

// AddAll stages every worktree file selected by pathspecs, adding new
// files, refreshing modified ones and dropping tracked paths that no
// longer exist. Untracked ignored files are skipped unless wt.Force is
// set. A literal pathspec that selects nothing fails with
// giterr.ErrNotFound.
func (idx *Index) AddAll(wt *Worktree, pathspecs []string, cb MatchedPathFunc) error {
	ps, err := ParsePathspec(pathspecs)
	if err != nil {
		return err
	}
	files, err := wt.scan()
	if err != nil {
		return err
	}
	matched := make(map[string]bool)

	present := make(map[string]bool, len(files))
	var plan []plannedChange
	for _, f := range files {
		present[f.path] = true
		spec, ok := ps.Match(f.path)
		if !ok {
			continue
		}
		matched[spec] = true
		lo, hi := idx.pathRange(f.path)
		if f.ignored && hi == lo && !wt.Force {
			continue
		}
		plan = append(plan, plannedChange{path: f.path, spec: spec})
	}
	for _, p := range idx.paths() {
		if present[p] {
			continue
		}
		if spec, ok := ps.Match(p); ok {
			matched[spec] = true
			plan = append(plan, plannedChange{path: p, spec: spec, remove: true})
		}
	}
	if err := checkLiterals(ps, matched); err != nil {
		return err
	}
	return idx.apply(wt, plan, cb)
}

// UpdateAll refreshes tracked paths selected by pathspecs from the
// worktree and drops those that were deleted. Untracked files are never
// added.
func (idx *Index) UpdateAll(wt *Worktree, pathspecs []string, cb MatchedPathFunc) error {
	ps, err := ParsePathspec(pathspecs)
	if err != nil {
		return err
	}
	matched := make(map[string]bool)
	var plan []plannedChange
	for _, p := range idx.paths() {
		spec, ok := ps.Match(p)
		if !ok {
			continue
		}
		matched[spec] = true
		fi, err := wt.FS.Lstat(p)
		switch {
		case err == nil && !fi.IsDir():
			plan = append(plan, plannedChange{path: p, spec: spec})
		case err == nil, errors.Is(err, fs.ErrNotExist):
			plan = append(plan, plannedChange{path: p, spec: spec, remove: true})
		default:
			return fmt.Errorf("update %s: %w", p, err)
		}
	}
	if err := checkLiterals(ps, matched); err != nil {
		return err
	}
	return idx.apply(wt, plan, cb)
}

// RemoveAll drops every entry, at any stage, whose path is selected by
// pathspecs. The worktree is not consulted.
func (idx *Index) RemoveAll(pathspecs []string, cb MatchedPathFunc) error {
	ps, err := ParsePathspec(pathspecs)
	if err != nil {
		return err
	}
	matched := make(map[string]bool)
	var plan []plannedChange
	for _, p := range idx.paths() {
		if spec, ok := ps.Match(p); ok {
			matched[spec] = true
			plan = append(plan, plannedChange{path: p, spec: spec, remove: true})
		}
	}
	if err := checkLiterals(ps, matched); err != nil {
		return err
	}
	return idx.apply(nil, plan, cb)
}

func checkLiterals(ps *Pathspec, matched map[string]bool) error {
	for _, lit := range ps.literals() {
		if !matched[lit] {
			return giterr.Newf("pathspec", lit, giterr.ErrNotFound, "did not match any files")
		}
	}
	return nil
}

// apply carries out plan, removals first, consulting cb for each path.
// On any error the entries are restored.
func (idx *Index) apply(wt *Worktree, plan []plannedChange, cb MatchedPathFunc) (err error) {
	saved := idx.snapshot()
	defer func() {
		if err != nil {
			idx.restore(saved)
		}
	}()

	sort.SliceStable(plan, func(i, j int) bool { return plan[i].remove && !plan[j].remove })
	for _, c := range plan {
		if c.remove {
			skip, err := callback(cb, c)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
			idx.removeStages(c.path, func(Stage) bool { return true })
			continue
		}

		var prev *Entry
		if e, ok := idx.Get(c.path, StageNormal); ok {
			prev = &e
		}
		cur, err := wt.readFile(c.path, prev, false)
		if err != nil {
			return err
		}
		lo, hi := idx.pathRange(c.path)
		conflicted := hi > lo && idx.entries[hi-1].Stage != StageNormal
		if prev != nil && !conflicted && prev.Hash == cur.Hash && prev.Mode == cur.Mode && !prev.IntentToAdd {
			continue
		}
		skip, err := callback(cb, c)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		e, err := wt.readFile(c.path, prev, true)
		if err != nil {
			return err
		}
		if err := idx.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func callback(cb MatchedPathFunc, c plannedChange) (bool, error) {
	if cb == nil {
		return false, nil
	}
	return cb(c.path, c.spec)
}

// paths returns each distinct entry path once, in index order.
func (idx *Index) paths() []string {
	var out []string
	for i, e := range idx.entries {
		if i > 0 && idx.entries[i-1].Path == e.Path {
			continue
		}
		out = append(out, e.Path)
	}
	return out
}
