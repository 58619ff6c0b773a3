package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
	"github.com/odvcencio/gitcore/pkg/revwalk"
)

// CommitSigner signs canonical commit payload bytes and returns the
// armored signature stored in the commit's gpgsig header.
type CommitSigner func(payload []byte) (string, error)

// CreateCommit writes a commit and, when updateRef is non-empty, moves
// that reference to it. The reference must currently point at the first
// parent (or not exist when there are no parents); otherwise the commit
// is still written but the update fails with giterr.ErrCASMismatch.
// updateRef may be "HEAD", in which case the branch HEAD names is moved.
func (r *Repo) CreateCommit(updateRef string, author, committer object.Signature, message string, tree object.Hash, parents []object.Hash, signer CommitSigner) (object.Hash, error) {
	if objType, _, err := r.Store.ReadHeader(tree); err != nil {
		return "", fmt.Errorf("create commit: tree: %w", err)
	} else if objType != object.TypeTree {
		return "", giterr.Newf("create commit", string(tree), giterr.ErrInvalidArgument, "%s is not a tree", objType)
	}
	for _, p := range parents {
		if objType, _, err := r.Store.ReadHeader(p); err != nil {
			return "", fmt.Errorf("create commit: parent: %w", err)
		} else if objType != object.TypeCommit {
			return "", giterr.Newf("create commit", string(p), giterr.ErrInvalidArgument, "parent is a %s", objType)
		}
	}

	commit := &object.Commit{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	if signer != nil {
		sig, err := signer(object.CommitSigningPayload(commit))
		if err != nil {
			return "", fmt.Errorf("create commit: sign commit: %w", err)
		}
		commit.GPGSig = sig
	}
	h, err := r.Store.WriteCommit(commit)
	if err != nil {
		return "", fmt.Errorf("create commit: write commit: %w", err)
	}
	if updateRef == "" {
		return h, nil
	}

	target, err := r.updateTarget(updateRef)
	if err != nil {
		return h, fmt.Errorf("create commit: %w", err)
	}
	var expected object.Hash
	if len(parents) > 0 {
		expected = parents[0]
	}
	if err := r.Refs.CompareAndSwap(target, h, expected, commitReflogMessage(commit)); err != nil {
		return h, fmt.Errorf("create commit: %w", err)
	}
	r.logger.Debug("commit created", "hash", h, "ref", target, "parents", len(parents))
	return h, nil
}

// updateTarget follows symbolic references from name to the direct (or
// not yet existing) reference an update should write.
func (r *Repo) updateTarget(name string) (string, error) {
	cur := name
	for range refs.MaxSymbolicDepth {
		ref, err := r.Refs.Lookup(cur)
		if errors.Is(err, giterr.ErrNotFound) {
			return cur, nil
		}
		if err != nil {
			return "", err
		}
		if !ref.IsSymbolic() {
			return cur, nil
		}
		cur = ref.Symbolic
	}
	return "", giterr.New("resolve ref", name, giterr.ErrTooManyRedirects)
}

func commitReflogMessage(c *object.Commit) string {
	switch {
	case len(c.Parents) == 0:
		return "commit (initial): " + c.Summary()
	case len(c.Parents) > 1:
		return "commit (merge): " + c.Summary()
	}
	return "commit: " + c.Summary()
}

// Commit creates a commit from the index on top of HEAD using the
// configured identity.
//
//  1. Read the index; refuse if it has conflicts
//  2. Write its tree
//  3. Resolve HEAD to get the parent commit (none on an unborn branch)
//  4. Add MERGE_HEAD as a second parent when a merge is in progress
//  5. Write the commit and move the current branch
func (r *Repo) Commit(message string) (object.Hash, error) {
	return r.CommitWithSigner(message, nil)
}

// CommitWithSigner creates a commit from the index and signs it when
// signer is provided.
func (r *Repo) CommitWithSigner(message string, signer CommitSigner) (object.Hash, error) {
	idx, err := r.Index()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	tree, err := idx.WriteTree(r.Store)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	head, err := r.HeadCommit()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if head != "" {
		parents = append(parents, head)
	}
	mergeHeads, err := r.MergeHeads()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	parents = append(parents, mergeHeads...)

	who := r.Identity()
	h, err := r.CreateCommit(refs.HEAD, who, who, message, tree, parents, signer)
	if err != nil {
		return h, err
	}
	if len(mergeHeads) > 0 {
		if err := r.StateCleanup(); err != nil {
			return h, fmt.Errorf("commit: %w", err)
		}
	}
	return h, nil
}

// Log returns commits reachable from start, newest first, following
// first parents only when firstParent is set. limit <= 0 means no limit.
func (r *Repo) Log(start object.Hash, limit int, firstParent bool) ([]*object.Commit, error) {
	w := r.Walker()
	w.Sorting(revwalk.SortTime)
	if firstParent {
		w.SimplifyFirstParent()
	}
	if err := w.Push(start); err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	var out []*object.Commit
	err := w.ForEach(func(_ object.Hash, c *object.Commit) error {
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			return revwalk.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	return out, nil
}
