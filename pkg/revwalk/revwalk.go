// Package revwalk enumerates commits reachable from a set of starting
// points, excluding everything reachable from a set of hidden points.
package revwalk

import (
	"container/heap"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// ErrIterOver is returned by Next once every commit has been produced.
var ErrIterOver = errors.New("revwalk: iteration over")

// ErrStop may be returned from a ForEach callback to end the walk early
// without an error.
var ErrStop = errors.New("revwalk: stop")

// Sort selects the output order. Modes combine with |.
type Sort uint8

const (
	// SortNone yields commits breadth first from the pushed tips, parents
	// in recorded order.
	SortNone Sort = 0
	// SortTopological never yields a parent before all of its walked
	// children.
	SortTopological Sort = 1 << 0
	// SortTime yields newer committer dates first.
	SortTime Sort = 1 << 1
	// SortReverse inverts whichever order the other bits produce.
	SortReverse Sort = 1 << 2
)

// Source reads objects; *object.Store satisfies it.
type Source interface {
	ReadObject(h object.Hash) (object.Object, error)
}

// RefSource resolves reference names; *refs.DB satisfies it.
type RefSource interface {
	ResolveName(name string) (object.Hash, error)
	Glob(pattern string) ([]*refs.Reference, error)
}

// HideFunc reports whether a reachable commit should be hidden together
// with its ancestors.
type HideFunc func(object.Hash) bool

// Walker is a single-use iterator configured by pushes and hides, drained
// by Next. It is not safe for concurrent use.
type Walker struct {
	src  Source
	refs RefSource

	sorting     Sort
	firstParent bool
	hideFuncs   []HideFunc
	resolve     func(string) (object.Hash, error)

	pushed []object.Hash
	hidden []object.Hash

	commits  map[object.Hash]*object.Commit
	flags    map[object.Hash]uint8
	seq      map[object.Hash]int
	frontier *commitHeap
	queue    []object.Hash
	limited  bool
	settled  bool
	walking  bool
}

// New returns a walker over src. refdb may be nil when only object ids
// are pushed.
func New(src Source, refdb RefSource) *Walker {
	w := &Walker{src: src, refs: refdb}
	w.Reset()
	return w
}

// Reset discards pushes, hides and progress. Sorting, first-parent mode
// and hide callbacks are kept.
func (w *Walker) Reset() {
	w.pushed = nil
	w.hidden = nil
	w.commits = make(map[object.Hash]*object.Commit)
	w.restart()
}

// Sorting sets the output order and restarts the walk.
func (w *Walker) Sorting(mode Sort) {
	w.sorting = mode
	w.restart()
}

// SimplifyFirstParent follows only the first parent of each commit.
func (w *Walker) SimplifyFirstParent() {
	w.firstParent = true
	w.restart()
}

// AddHideFunc registers a callback consulted once for each commit the
// walk reaches. A commit it accepts is hidden together with its
// ancestors.
func (w *Walker) AddHideFunc(fn HideFunc) {
	if fn != nil {
		w.hideFuncs = append(w.hideFuncs, fn)
	}
}

// SetResolver replaces how PushRange turns revision strings into ids.
// The default accepts full hex ids and short reference names.
func (w *Walker) SetResolver(fn func(string) (object.Hash, error)) {
	w.resolve = fn
}

func (w *Walker) restart() {
	w.flags = nil
	w.seq = nil
	w.frontier = nil
	w.queue = nil
	w.settled = false
	w.walking = false
}

// peel follows tags down to a commit id.
func (w *Walker) peel(op string, h object.Hash) (object.Hash, error) {
	for range 16 {
		obj, err := w.src.ReadObject(h)
		if err != nil {
			return "", giterr.Wrap(op, string(h), err)
		}
		switch o := obj.(type) {
		case *object.Commit:
			w.commits[h] = o
			return h, nil
		case *object.Tag:
			h = o.Target
		default:
			return "", giterr.Newf(op, string(h), giterr.ErrInvalidArgument, "not a commit (%s)", obj.Type())
		}
	}
	return "", giterr.Newf(op, string(h), giterr.ErrInvalidArgument, "tag chain too long")
}

// Push adds a starting commit. Annotated tags are peeled.
func (w *Walker) Push(h object.Hash) error {
	c, err := w.peel("revwalk push", h)
	if err != nil {
		return err
	}
	w.pushed = append(w.pushed, c)
	w.restart()
	return nil
}

// Hide excludes a commit and all of its ancestors.
func (w *Walker) Hide(h object.Hash) error {
	c, err := w.peel("revwalk hide", h)
	if err != nil {
		return err
	}
	w.hidden = append(w.hidden, c)
	w.restart()
	return nil
}

func (w *Walker) refSource(op string) (RefSource, error) {
	if w.refs == nil {
		return nil, giterr.Newf(op, "", giterr.ErrInvalidArgument, "walker has no reference store")
	}
	return w.refs, nil
}

// PushRef pushes the commit a reference resolves to.
func (w *Walker) PushRef(name string) error {
	rs, err := w.refSource("revwalk push ref")
	if err != nil {
		return err
	}
	h, err := rs.ResolveName(name)
	if err != nil {
		return err
	}
	return w.Push(h)
}

// HideRef hides the commit a reference resolves to.
func (w *Walker) HideRef(name string) error {
	rs, err := w.refSource("revwalk hide ref")
	if err != nil {
		return err
	}
	h, err := rs.ResolveName(name)
	if err != nil {
		return err
	}
	return w.Hide(h)
}

// PushHead pushes HEAD.
func (w *Walker) PushHead() error { return w.PushRef(refs.HEAD) }

// HideHead hides HEAD.
func (w *Walker) HideHead() error { return w.HideRef(refs.HEAD) }

// PushGlob pushes every reference matching pattern. A pattern without
// "refs/" is taken relative to refs/, and one without glob characters
// matches everything below it. References to non-commits are skipped.
func (w *Walker) PushGlob(pattern string) error {
	return w.globApply("revwalk push glob", pattern, w.Push)
}

// HideGlob hides every reference matching pattern, like PushGlob.
func (w *Walker) HideGlob(pattern string) error {
	return w.globApply("revwalk hide glob", pattern, w.Hide)
}

func (w *Walker) globApply(op, pattern string, apply func(object.Hash) error) error {
	rs, err := w.refSource(op)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(pattern, "refs/") {
		pattern = "refs/" + pattern
	}
	if !strings.ContainsAny(pattern, "*?[") {
		pattern = strings.TrimSuffix(pattern, "/") + "/*"
	}
	matches, err := rs.Glob(pattern)
	if err != nil {
		return err
	}
	for _, ref := range matches {
		h, err := rs.ResolveName(ref.Name)
		if err != nil {
			return err
		}
		if err := apply(h); err != nil {
			if errors.Is(err, giterr.ErrInvalidArgument) {
				continue
			}
			return err
		}
	}
	return nil
}

// PushRange hides the left side of "A..B" and pushes the right side.
// An empty side means HEAD. Symmetric ranges ("A...B") are rejected.
func (w *Walker) PushRange(spec string) error {
	if strings.Contains(spec, "...") {
		return giterr.Newf("revwalk push range", spec, giterr.ErrInvalidArgument, "symmetric ranges are not supported")
	}
	left, right, ok := strings.Cut(spec, "..")
	if !ok {
		return giterr.Newf("revwalk push range", spec, giterr.ErrInvalidArgument, "expected A..B")
	}
	if left == "" {
		left = refs.HEAD
	}
	if right == "" {
		right = refs.HEAD
	}
	from, err := w.resolveSpec(left)
	if err != nil {
		return err
	}
	to, err := w.resolveSpec(right)
	if err != nil {
		return err
	}
	if err := w.Hide(from); err != nil {
		return err
	}
	return w.Push(to)
}

func (w *Walker) resolveSpec(spec string) (object.Hash, error) {
	if w.resolve != nil {
		return w.resolve(spec)
	}
	if h, err := object.ParseHash(spec); err == nil {
		return h, nil
	}
	rs, err := w.refSource("revwalk resolve")
	if err != nil {
		return "", err
	}
	for _, name := range refs.Candidates(spec) {
		if !refs.ValidName(name) {
			continue
		}
		h, err := rs.ResolveName(name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, giterr.ErrNotFound) {
			return "", err
		}
	}
	return "", giterr.New("revwalk resolve", spec, giterr.ErrNotFound)
}

func (w *Walker) commit(h object.Hash) (*object.Commit, error) {
	if c, ok := w.commits[h]; ok {
		return c, nil
	}
	obj, err := w.src.ReadObject(h)
	if err != nil {
		return nil, fmt.Errorf("revwalk: read commit %s: %w", h, err)
	}
	c, ok := obj.(*object.Commit)
	if !ok {
		return nil, giterr.Newf("revwalk", string(h), giterr.ErrCorruption, "parent is a %s", obj.Type())
	}
	w.commits[h] = c
	return c, nil
}

func (w *Walker) parents(c *object.Commit) []object.Hash {
	if w.firstParent && len(c.Parents) > 1 {
		return c.Parents[:1]
	}
	return c.Parents
}

// Per-commit walk state.
const (
	flagSeen     uint8 = 1 << iota // queued on the frontier at some point
	flagExpanded                   // popped; its parents have been queued
	flagHidden                     // reachable from a hidden commit
)

// limitSlop is how many extra commits a limited walk expands once the
// frontier holds only hidden commits older than every candidate, to
// absorb committer clocks that run backwards.
const limitSlop = 5

// start seeds the frontier from the pushed and hidden commits. Walks that
// hide commits, or that sort topologically or in reverse, settle their
// output before the first commit is returned; the rest stream straight
// off the frontier.
func (w *Walker) start() error {
	w.flags = make(map[object.Hash]uint8)
	w.seq = make(map[object.Hash]int)
	w.frontier = &commitHeap{less: w.frontierLess}
	w.queue = nil
	w.limited = len(w.hidden) > 0 || len(w.hideFuncs) > 0
	w.walking = true

	for _, h := range w.hidden {
		w.flags[h] |= flagHidden
	}
	for _, h := range w.pushed {
		if err := w.enqueue(h); err != nil {
			return err
		}
	}
	for _, h := range w.hidden {
		if err := w.enqueue(h); err != nil {
			return err
		}
	}

	if !w.limited && w.sorting&(SortTopological|SortReverse) == 0 {
		return nil
	}
	out, err := w.limit()
	if err != nil {
		return err
	}
	if w.sorting&SortTopological != 0 {
		out = w.topoSort(out)
	}
	if w.sorting&SortReverse != 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	w.queue = out
	w.settled = true
	return nil
}

// frontierLess orders the frontier newest committer date first under
// SortTime and in discovery order otherwise.
func (w *Walker) frontierLess(a, b object.Hash) bool {
	if w.sorting&SortTime != 0 {
		ta, tb := w.commits[a].Committer.When, w.commits[b].Committer.When
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	}
	return w.seq[a] < w.seq[b]
}

// enqueue reads h and puts it on the frontier unless it was queued
// before. Hide callbacks see each commit once, here.
func (w *Walker) enqueue(h object.Hash) error {
	if w.flags[h]&flagSeen != 0 {
		return nil
	}
	if _, err := w.commit(h); err != nil {
		return err
	}
	w.flags[h] |= flagSeen
	w.seq[h] = len(w.seq)
	if w.flags[h]&flagHidden == 0 {
		for _, fn := range w.hideFuncs {
			if fn(h) {
				w.flags[h] |= flagHidden
				break
			}
		}
	}
	heap.Push(w.frontier, h)
	return nil
}

// expand pops the next frontier commit and queues its parents. Every
// parent of a hidden commit is hidden and queued, whatever first-parent
// mode says, so the mark keeps travelling down the history.
func (w *Walker) expand() (object.Hash, error) {
	h := heap.Pop(w.frontier).(object.Hash)
	w.flags[h] |= flagExpanded
	c := w.commits[h]
	if w.flags[h]&flagHidden == 0 {
		for _, p := range w.parents(c) {
			if err := w.enqueue(p); err != nil {
				return "", err
			}
		}
		return h, nil
	}
	for _, p := range c.Parents {
		if err := w.hide(p); err != nil {
			return "", err
		}
		if err := w.enqueue(p); err != nil {
			return "", err
		}
	}
	return h, nil
}

// hide marks h hidden. If h was already expanded the mark is carried
// through the commits below it that the walk has reached.
func (w *Walker) hide(h object.Hash) error {
	stack := []object.Hash{h}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if w.flags[h]&flagHidden != 0 {
			continue
		}
		w.flags[h] |= flagHidden
		if w.flags[h]&flagExpanded == 0 {
			continue
		}
		for _, p := range w.commits[h].Parents {
			if err := w.enqueue(p); err != nil {
				return err
			}
			stack = append(stack, p)
		}
	}
	return nil
}

// limit expands the frontier until nothing left on it can hide a commit
// already produced, and returns the visible commits in expansion order.
// Walks that hide nothing drain the whole history.
func (w *Walker) limit() ([]object.Hash, error) {
	var (
		candidates []object.Hash
		oldest     time.Time
		slop       = limitSlop
	)
	for w.frontier.Len() > 0 {
		if w.limited && w.onlyHiddenOlderThan(oldest, len(candidates) > 0) {
			if slop--; slop == 0 {
				break
			}
		} else {
			slop = limitSlop
		}
		h, err := w.expand()
		if err != nil {
			return nil, err
		}
		if w.flags[h]&flagHidden != 0 {
			continue
		}
		candidates = append(candidates, h)
		if when := w.commits[h].Committer.When; len(candidates) == 1 || when.Before(oldest) {
			oldest = when
		}
	}

	out := candidates[:0]
	for _, h := range candidates {
		if w.flags[h]&flagHidden == 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

// onlyHiddenOlderThan reports whether every frontier commit is hidden
// and, when there are candidates, committed before the oldest of them.
// Past that point no hidden commit still to come can reach a candidate.
func (w *Walker) onlyHiddenOlderThan(oldest time.Time, haveCandidates bool) bool {
	for _, h := range w.frontier.items {
		if w.flags[h]&flagHidden == 0 {
			return false
		}
		if haveCandidates && !w.commits[h].Committer.When.Before(oldest) {
			return false
		}
	}
	return true
}

func (w *Walker) newer(a, b object.Hash) bool {
	ta := w.commits[a].Committer.When
	tb := w.commits[b].Committer.When
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return w.seq[a] < w.seq[b]
}

// topoSort emits a commit only once all of its children in the set have
// been emitted. Ready commits are taken newest first under SortTime and
// in discovery order otherwise.
func (w *Walker) topoSort(hs []object.Hash) []object.Hash {
	inSet := make(map[object.Hash]bool, len(hs))
	for _, h := range hs {
		inSet[h] = true
	}
	children := make(map[object.Hash]int, len(hs))
	for _, h := range hs {
		for _, p := range w.parents(w.commits[h]) {
			if inSet[p] {
				children[p]++
			}
		}
	}

	less := func(a, b object.Hash) bool { return w.seq[a] < w.seq[b] }
	if w.sorting&SortTime != 0 {
		less = w.newer
	}
	q := &commitHeap{less: less}
	for _, h := range hs {
		if children[h] == 0 {
			q.items = append(q.items, h)
		}
	}
	heap.Init(q)

	out := make([]object.Hash, 0, len(hs))
	emitted := make(map[object.Hash]bool, len(hs))
	for q.Len() > 0 {
		h := heap.Pop(q).(object.Hash)
		out = append(out, h)
		emitted[h] = true
		for _, p := range w.parents(w.commits[h]) {
			if !inSet[p] || emitted[p] {
				continue
			}
			children[p]--
			if children[p] == 0 {
				heap.Push(q, p)
			}
		}
	}
	return out
}

// Next returns the next commit id. After the last one it returns
// ErrIterOver and resets the walker.
func (w *Walker) Next() (object.Hash, error) {
	if !w.walking {
		if err := w.start(); err != nil {
			return "", err
		}
	}
	if w.settled {
		if len(w.queue) == 0 {
			w.Reset()
			return "", ErrIterOver
		}
		h := w.queue[0]
		w.queue = w.queue[1:]
		return h, nil
	}
	if w.frontier.Len() == 0 {
		w.Reset()
		return "", ErrIterOver
	}
	return w.expand()
}

// ForEach calls fn for each remaining commit. Returning ErrStop ends the
// walk without error.
func (w *Walker) ForEach(fn func(object.Hash, *object.Commit) error) error {
	for {
		h, err := w.Next()
		if errors.Is(err, ErrIterOver) {
			return nil
		}
		if err != nil {
			return err
		}
		c := w.commits[h]
		if err := fn(h, c); err != nil {
			if errors.Is(err, ErrStop) {
				w.Reset()
				return nil
			}
			return err
		}
	}
}

type commitHeap struct {
	items []object.Hash
	less  func(a, b object.Hash) bool
}

func (h *commitHeap) Len() int           { return len(h.items) }
func (h *commitHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *commitHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *commitHeap) Push(x any)         { h.items = append(h.items, x.(object.Hash)) }
func (h *commitHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
