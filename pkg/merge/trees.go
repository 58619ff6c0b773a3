package merge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/diff3"
	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

const (
	// DefaultRenameThreshold is the similarity percentage at which a
	// deleted and an added file are paired as a rename.
	DefaultRenameThreshold = 50
	// DefaultRenameLimit caps the number of sources and destinations
	// considered for inexact rename detection.
	DefaultRenameLimit = 1000
)

// Options controls a tree merge.
type Options struct {
	FindRenames     bool
	RenameThreshold int
	RenameLimit     int
	// FailOnConflict stops at the first conflict with giterr.ErrMergeConflict.
	FailOnConflict bool
	FileFavor      diff3.Favor
	FileStyle      diff3.Style
	Binary         func([]byte) bool
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RenameThreshold <= 0 {
		o.RenameThreshold = DefaultRenameThreshold
	}
	if o.RenameLimit <= 0 {
		o.RenameLimit = DefaultRenameLimit
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type side map[string]index.Entry

func (s side) get(p string) *index.Entry {
	e, ok := s[p]
	if !ok {
		return nil
	}
	return &e
}

// outcome is the merge result for one final path. base, ours and
// theirs hold the versions each side contributes at that path.
type outcome struct {
	path               string
	resolved           *index.Entry
	conflict           bool
	base, ours, theirs *index.Entry
	oursHere           bool // ours had this file at path
	theirsHere         bool
}

type merger struct {
	store  *object.Store
	opts   Options
	logger *slog.Logger
	blobs  map[object.Hash][]byte
}

// Trees merges ours and theirs against ancestor and returns an
// in-memory index. Any of the three ids may be empty, which stands for
// the empty tree. Resolved paths are stage 0; unresolved paths carry
// stages 1-3 for the versions that exist.
func Trees(store *object.Store, ancestor, ours, theirs object.Hash, opts Options) (*index.Index, error) {
	opts = opts.withDefaults()
	m := &merger{store: store, opts: opts, logger: opts.Logger, blobs: make(map[object.Hash][]byte)}

	base, err := m.flatten(ancestor)
	if err != nil {
		return nil, err
	}
	oursSide, err := m.flatten(ours)
	if err != nil {
		return nil, err
	}
	theirsSide, err := m.flatten(theirs)
	if err != nil {
		return nil, err
	}

	var oursRen, theirsRen map[string]string
	if opts.FindRenames {
		if oursRen, err = m.detectRenames(base, oursSide, theirsSide); err != nil {
			return nil, err
		}
		if theirsRen, err = m.detectRenames(base, theirsSide, oursSide); err != nil {
			return nil, err
		}
		oursSide = applyRenames(oursSide, oursRen)
		theirsSide = applyRenames(theirsSide, theirsRen)
	}

	var outcomes []outcome
	for _, p := range unionPaths(base, oursSide, theirsSide) {
		outs, err := m.mergePath(p, base.get(p), oursSide.get(p), theirsSide.get(p), oursRen[p], theirsRen[p])
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outs...)
	}

	outcomes = combineCollisions(outcomes)
	markDirectoryFileConflicts(outcomes)

	idx := index.New(store.Algorithm())
	var conflicts []outcome
	for _, o := range outcomes {
		if o.conflict {
			conflicts = append(conflicts, o)
			continue
		}
		if o.resolved == nil {
			continue
		}
		if err := idx.Add(*o.resolved); err != nil {
			return nil, fmt.Errorf("merge trees: %w", err)
		}
	}
	for _, o := range conflicts {
		if opts.FailOnConflict {
			return nil, giterr.New("merge trees", o.path, giterr.ErrMergeConflict)
		}
		m.logger.Debug("merge conflict", "path", o.path)
		if err := addStages(idx, o); err != nil {
			return nil, fmt.Errorf("merge trees: %w", err)
		}
	}
	return idx, nil
}

func (m *merger) flatten(tree object.Hash) (side, error) {
	if tree == "" {
		return side{}, nil
	}
	idx := index.New(m.store.Algorithm())
	if err := idx.ReadTree(m.store, tree); err != nil {
		return nil, fmt.Errorf("merge trees: %w", err)
	}
	out := make(side, idx.Len())
	for _, e := range idx.Entries() {
		out[e.Path] = e
	}
	return out, nil
}

func unionPaths(sides ...side) []string {
	seen := make(map[string]struct{})
	for _, s := range sides {
		for p := range s {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// mergePath resolves one ancestor-aligned path. oursTo and theirsTo are
// the rename destinations on each side, empty when not renamed.
func (m *merger) mergePath(p string, b, o, t *index.Entry, oursTo, theirsTo string) ([]outcome, error) {
	if oursTo != "" && theirsTo != "" && oursTo != theirsTo {
		m.logger.Debug("rename/rename conflict", "path", p, "ours", oursTo, "theirs", theirsTo)
		return []outcome{
			{path: p, conflict: true, base: at(b, p)},
			{path: oursTo, conflict: true, ours: at(o, oursTo), oursHere: true},
			{path: theirsTo, conflict: true, theirs: at(t, theirsTo), theirsHere: true},
		}, nil
	}

	final := p
	if oursTo != "" {
		final = oursTo
	}
	if theirsTo != "" {
		final = theirsTo
	}
	out := outcome{
		path:       final,
		base:       at(b, final),
		ours:       at(o, final),
		theirs:     at(t, final),
		oursHere:   o != nil && (oursTo != "" || final == p),
		theirsHere: t != nil && (theirsTo != "" || final == p),
	}

	// A rename on one side against a deletion on the other.
	if (oursTo != "" && t == nil) || (theirsTo != "" && o == nil) {
		out.conflict = true
		return []outcome{out}, nil
	}

	switch {
	case sameEntry(o, t):
		out.resolved = out.ours
	case sameEntry(b, o):
		out.resolved = out.theirs
	case sameEntry(b, t):
		out.resolved = out.ours
	case o == nil || t == nil:
		out.conflict = true
	default:
		resolved, err := m.mergeContent(final, out.base, out.ours, out.theirs)
		if err != nil {
			return nil, err
		}
		out.resolved = resolved
		out.conflict = resolved == nil
	}
	return []outcome{out}, nil
}

func at(e *index.Entry, p string) *index.Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Path = p
	c.Stage = index.StageNormal
	return &c
}

func sameEntry(a, b *index.Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hash == b.Hash && a.Mode == b.Mode
}

func regular(e *index.Entry) bool {
	return e != nil && (e.Mode == object.ModeBlob || e.Mode == object.ModeExecutable)
}

// mergeContent merges two changed versions of a file. It returns nil
// when the versions cannot be merged.
func (m *merger) mergeContent(p string, b, o, t *index.Entry) (*index.Entry, error) {
	// Symlinks and gitlinks have no mergeable content.
	if !regular(o) || !regular(t) {
		return nil, nil
	}

	var anc FileInput
	if regular(b) {
		data, err := m.blob(b.Hash)
		if err != nil {
			return nil, err
		}
		anc = FileInput{Path: p, Mode: b.Mode, Content: data}
	}
	oursData, err := m.blob(o.Hash)
	if err != nil {
		return nil, err
	}
	theirsData, err := m.blob(t.Hash)
	if err != nil {
		return nil, err
	}

	res, err := File(anc,
		FileInput{Path: p, Mode: o.Mode, Content: oursData},
		FileInput{Path: p, Mode: t.Mode, Content: theirsData},
		FileOptions{Favor: m.opts.FileFavor, Style: m.opts.FileStyle, Binary: m.opts.Binary})
	if err != nil {
		return nil, err
	}
	if !res.Automergeable {
		return nil, nil
	}
	h, err := m.store.WriteBlob(&object.Blob{Data: res.Content})
	if err != nil {
		return nil, fmt.Errorf("merge trees: write %s: %w", p, err)
	}
	return &index.Entry{Path: p, Mode: res.Mode, Hash: h}, nil
}

func (m *merger) blob(h object.Hash) ([]byte, error) {
	if data, ok := m.blobs[h]; ok {
		return data, nil
	}
	b, err := m.store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("merge trees: %w", err)
	}
	m.blobs[h] = b.Data
	return b.Data, nil
}

// combineCollisions turns several outcomes landing on one path, as when
// both sides rename different files to the same name, into a single
// conflict holding the version each side had there.
func combineCollisions(all []outcome) []outcome {
	var outcomes []outcome
	for _, o := range all {
		if o.conflict || o.resolved != nil {
			outcomes = append(outcomes, o)
		}
	}
	byPath := make(map[string][]int)
	for i, o := range outcomes {
		byPath[o.path] = append(byPath[o.path], i)
	}
	var out []outcome
	for i, o := range outcomes {
		group := byPath[o.path]
		if len(group) == 1 {
			out = append(out, o)
			continue
		}
		if group[0] != i {
			continue
		}
		c := outcome{path: o.path, conflict: true}
		for _, j := range group {
			g := outcomes[j]
			if c.base == nil && g.base != nil && !g.oursHere && !g.theirsHere {
				c.base = g.base
			}
			if c.ours == nil && g.oursHere {
				c.ours, c.oursHere = g.ours, true
			}
			if c.theirs == nil && g.theirsHere {
				c.theirs, c.theirsHere = g.theirs, true
			}
		}
		out = append(out, c)
	}
	return out
}

// markDirectoryFileConflicts demotes resolved files that would sit where
// another result needs a directory. Outcomes are live: resolved or
// conflicted.
func markDirectoryFileConflicts(outcomes []outcome) {
	paths := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		paths = append(paths, o.path)
	}
	sort.Strings(paths)
	isDir := func(p string) bool {
		prefix := p + "/"
		i := sort.SearchStrings(paths, prefix)
		return i < len(paths) && strings.HasPrefix(paths[i], prefix)
	}
	for i := range outcomes {
		o := &outcomes[i]
		if o.conflict || !isDir(o.path) {
			continue
		}
		o.conflict = true
		o.resolved = nil
	}
}

func addStages(idx *index.Index, o outcome) error {
	stage := func(e *index.Entry, s index.Stage) error {
		if e == nil {
			return nil
		}
		c := *e
		c.Stage = s
		return idx.Add(c)
	}
	if err := stage(o.base, index.StageAncestor); err != nil {
		return err
	}
	if err := stage(o.ours, index.StageOurs); err != nil {
		return err
	}
	return stage(o.theirs, index.StageTheirs)
}
