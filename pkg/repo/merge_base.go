package repo

import (
	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/revwalk"
)

// mergeBaseStepLimit caps each merge-base search; tests lower it.
var mergeBaseStepLimit = revwalk.DefaultMaxSteps

func (r *Repo) baseFinder() *revwalk.BaseFinder {
	return revwalk.NewBaseFinder(r.Store, mergeBaseStepLimit)
}

// FindMergeBase returns the preferred common ancestor of two commits, or
// "" when their histories are disjoint or either id is empty.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	return r.baseFinder().MergeBase(a, b)
}

// MergeBases returns every best common ancestor of two commits, newest
// first. Criss-cross histories have more than one.
func (r *Repo) MergeBases(a, b object.Hash) ([]object.Hash, error) {
	return r.baseFinder().MergeBases(a, b)
}

// IsDescendantOf reports whether ancestor is reachable from commit through
// parent links. A commit is not its own descendant.
func (r *Repo) IsDescendantOf(commit, ancestor object.Hash) (bool, error) {
	if commit == "" || ancestor == "" {
		return false, giterr.New("descendant of", "", giterr.ErrInvalidArgument)
	}
	if commit == ancestor {
		return false, nil
	}
	return r.baseFinder().IsAncestor(ancestor, commit)
}
