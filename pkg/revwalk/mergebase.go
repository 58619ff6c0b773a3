package revwalk

import (
	"container/heap"
	"sort"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

// DefaultMaxSteps bounds how many commits one merge-base search may pop.
const DefaultMaxSteps = 10_000_000

// Paint bits for the merge-base search.
const (
	paintOne uint8 = 1 << iota
	paintTwo
	paintStale
	paintResult
)

// BaseFinder computes merge bases over a commit source. Commits read by
// one search are kept for the next; it is not safe for concurrent use.
type BaseFinder struct {
	src      Source
	maxSteps int
	commits  map[object.Hash]*object.Commit
}

// NewBaseFinder returns a finder reading from src. maxSteps <= 0 selects
// DefaultMaxSteps.
func NewBaseFinder(src Source, maxSteps int) *BaseFinder {
	if maxSteps <= 0 || maxSteps > DefaultMaxSteps {
		maxSteps = DefaultMaxSteps
	}
	return &BaseFinder{src: src, maxSteps: maxSteps, commits: make(map[object.Hash]*object.Commit)}
}

func (f *BaseFinder) commit(h object.Hash) (*object.Commit, error) {
	if c, ok := f.commits[h]; ok {
		return c, nil
	}
	obj, err := f.src.ReadObject(h)
	if err != nil {
		return nil, giterr.Wrap("merge base", string(h), err)
	}
	c, ok := obj.(*object.Commit)
	if !ok {
		return nil, giterr.Newf("merge base", string(h), giterr.ErrCorruption, "not a commit but a %s", obj.Type())
	}
	f.commits[h] = c
	return c, nil
}

// paintWalk holds one downward paint from a set of tips.
type paintWalk struct {
	f     *BaseFinder
	paint map[object.Hash]uint8
	seq   map[object.Hash]int
	queue *commitHeap
	steps int
}

func (f *BaseFinder) newPaintWalk() *paintWalk {
	pw := &paintWalk{
		f:     f,
		paint: make(map[object.Hash]uint8),
		seq:   make(map[object.Hash]int),
	}
	pw.queue = &commitHeap{less: pw.newer}
	return pw
}

// newer puts the latest committer date on top, then the earliest queued.
func (pw *paintWalk) newer(a, b object.Hash) bool {
	ta, tb := pw.f.commits[a].Committer.When, pw.f.commits[b].Committer.When
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return pw.seq[a] < pw.seq[b]
}

func (pw *paintWalk) mark(h object.Hash, bits uint8) error {
	if _, err := pw.f.commit(h); err != nil {
		return err
	}
	pw.paint[h] |= bits
	if _, ok := pw.seq[h]; !ok {
		pw.seq[h] = len(pw.seq)
	}
	heap.Push(pw.queue, h)
	return nil
}

// live reports whether the queue still holds a commit not yet known to
// sit below a common ancestor.
func (pw *paintWalk) live() bool {
	for _, h := range pw.queue.items {
		if pw.paint[h]&paintStale == 0 {
			return true
		}
	}
	return false
}

// run paints ancestors of one with paintOne and of each of twos with
// paintTwo, newest first, and returns the commits first found carrying
// both. Anything below such a commit is painted stale and never
// reported.
func (pw *paintWalk) run(one object.Hash, twos []object.Hash) ([]object.Hash, error) {
	if err := pw.mark(one, paintOne); err != nil {
		return nil, err
	}
	for _, h := range twos {
		if err := pw.mark(h, paintTwo); err != nil {
			return nil, err
		}
	}

	var found []object.Hash
	for pw.live() {
		pw.steps++
		if pw.steps > pw.f.maxSteps {
			return nil, giterr.Newf("merge base", string(one), giterr.ErrLimitExceeded, "maximum steps (%d)", pw.f.maxSteps)
		}
		h := heap.Pop(pw.queue).(object.Hash)
		bits := pw.paint[h] & (paintOne | paintTwo | paintStale)
		if bits == paintOne|paintTwo {
			if pw.paint[h]&paintResult == 0 {
				pw.paint[h] |= paintResult
				found = append(found, h)
			}
			bits |= paintStale
		}
		for _, p := range pw.f.commits[h].Parents {
			if pw.paint[p]&bits == bits {
				continue
			}
			if err := pw.mark(p, bits); err != nil {
				return nil, err
			}
		}
	}
	return found, nil
}

// MergeBases returns every best common ancestor of one and two, newest
// committer date first with ties broken by id. Disjoint histories yield
// no bases.
func (f *BaseFinder) MergeBases(one, two object.Hash) ([]object.Hash, error) {
	if one == "" || two == "" {
		return nil, giterr.New("merge base", "", giterr.ErrInvalidArgument)
	}
	if one == two {
		if _, err := f.commit(one); err != nil {
			return nil, err
		}
		return []object.Hash{one}, nil
	}
	found, err := f.newPaintWalk().run(one, []object.Hash{two})
	if err != nil {
		return nil, err
	}
	if len(found) > 1 {
		if found, err = f.independent(found); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		ti, tj := f.commits[found[i]].Committer.When, f.commits[found[j]].Committer.When
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return found[i] < found[j]
	})
	return found, nil
}

// MergeBase returns the preferred merge base of one and two, or "" when
// their histories are disjoint.
func (f *BaseFinder) MergeBase(one, two object.Hash) (object.Hash, error) {
	bases, err := f.MergeBases(one, two)
	if err != nil || len(bases) == 0 {
		return "", err
	}
	return bases[0], nil
}

// IsAncestor reports whether ancestor is reachable from commit. A commit
// is its own ancestor here; callers wanting a strict relation compare ids
// first.
func (f *BaseFinder) IsAncestor(ancestor, commit object.Hash) (bool, error) {
	bases, err := f.MergeBases(ancestor, commit)
	if err != nil {
		return false, err
	}
	for _, b := range bases {
		if b == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// independent drops candidates reachable from another candidate. Each
// candidate is painted against the others; if a common ancestor comes
// back that is the candidate itself, something above it reaches it.
func (f *BaseFinder) independent(cands []object.Hash) ([]object.Hash, error) {
	redundant := make(map[object.Hash]bool, len(cands))
	for i, c := range cands {
		if redundant[c] {
			continue
		}
		others := make([]object.Hash, 0, len(cands)-1)
		for j, o := range cands {
			if j != i && !redundant[o] {
				others = append(others, o)
			}
		}
		if len(others) == 0 {
			break
		}
		found, err := f.newPaintWalk().run(c, others)
		if err != nil {
			return nil, err
		}
		for _, h := range found {
			if h == c {
				redundant[c] = true
			}
		}
	}
	out := cands[:0]
	for _, c := range cands {
		if !redundant[c] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		// In a DAG the newest candidate is reachable from no other.
		return nil, giterr.Newf("merge base", string(cands[0]), giterr.ErrCorruption, "cycle detected in commit history")
	}
	return out, nil
}
