package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// HeadName returns the reference HEAD points at ("refs/heads/main"), or
// "HEAD" when HEAD is detached.
func (r *Repo) HeadName() (string, error) {
	ref, err := r.Refs.Lookup(refs.HEAD)
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	if ref.IsSymbolic() {
		return ref.Symbolic, nil
	}
	return refs.HEAD, nil
}

// Head resolves HEAD to the direct reference it ends at. On an unborn
// branch it fails with an error wrapping giterr.ErrNotFound.
func (r *Repo) Head() (*refs.Reference, error) {
	ref, err := r.Refs.Lookup(refs.HEAD)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	direct, err := r.Refs.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	return direct, nil
}

// HeadCommit returns the commit HEAD resolves to, or "" on an unborn
// branch.
func (r *Repo) HeadCommit() (object.Hash, error) {
	ref, err := r.Head()
	if err != nil {
		if errors.Is(err, giterr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return ref.Target, nil
}

// HeadUnborn reports whether HEAD names a branch that has no commits yet.
func (r *Repo) HeadUnborn() (bool, error) {
	ref, err := r.Refs.Lookup(refs.HEAD)
	if err != nil {
		return false, fmt.Errorf("head unborn: %w", err)
	}
	if !ref.IsSymbolic() {
		return false, nil
	}
	if _, err := r.Refs.Resolve(ref); err != nil {
		if errors.Is(err, giterr.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// HeadDetached reports whether HEAD holds an object id directly.
func (r *Repo) HeadDetached() (bool, error) {
	ref, err := r.Refs.Lookup(refs.HEAD)
	if err != nil {
		return false, fmt.Errorf("head detached: %w", err)
	}
	return !ref.IsSymbolic(), nil
}

// SetHead points HEAD at a reference. A branch under refs/heads/ may be
// unborn; any other reference must exist.
func (r *Repo) SetHead(name string) error {
	if !refs.ValidName(name) || !strings.HasPrefix(name, "refs/") {
		return giterr.New("set head", name, giterr.ErrInvalidArgument)
	}
	if !strings.HasPrefix(name, refs.HeadsPrefix) && !r.Refs.Exists(name) {
		return giterr.New("set head", name, giterr.ErrNotFound)
	}
	from := r.headDescription()
	msg := fmt.Sprintf("checkout: moving from %s to %s", from, refs.ShortName(name))
	if _, err := r.Refs.CreateSymbolic(refs.HEAD, name, true, msg); err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	return nil
}

// SetHeadDetached stores a commit id in HEAD. Annotated tags are peeled.
func (r *Repo) SetHeadDetached(h object.Hash) error {
	target, err := r.PeelTo(h, object.TypeCommit)
	if err != nil {
		return fmt.Errorf("set head detached: %w", err)
	}
	from := r.headDescription()
	msg := fmt.Sprintf("checkout: moving from %s to %s", from, target)
	if _, err := r.Refs.Create(refs.HEAD, target, true, msg); err != nil {
		return fmt.Errorf("set head detached: %w", err)
	}
	return nil
}

// headDescription names what HEAD currently is, for reflog messages.
func (r *Repo) headDescription() string {
	ref, err := r.Refs.Lookup(refs.HEAD)
	if err != nil {
		return refs.HEAD
	}
	if ref.IsSymbolic() {
		return refs.ShortName(ref.Symbolic)
	}
	return string(ref.Target)
}

// ResolveRef resolves a reference name to an object hash. Short names are
// tried in git's order: the name itself, refs/<name>, refs/tags/<name>,
// refs/heads/<name>, refs/remotes/<name> and refs/remotes/<name>/HEAD.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	for _, candidate := range refs.Candidates(name) {
		if !refs.ValidName(candidate) || !r.Refs.Exists(candidate) {
			continue
		}
		h, err := r.Refs.ResolveName(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve ref %q: %w", name, err)
		}
		return h, nil
	}
	return "", giterr.New("resolve ref", name, giterr.ErrNotFound)
}

// peelTag follows annotated tags until it reaches a non-tag object.
func (r *Repo) peelTag(h object.Hash) (object.Hash, error) {
	for range refs.MaxSymbolicDepth * 10 {
		objType, _, err := r.Store.ReadHeader(h)
		if err != nil {
			return "", err
		}
		if objType != object.TypeTag {
			return h, nil
		}
		tag, err := r.Store.ReadTag(h)
		if err != nil {
			return "", err
		}
		h = tag.Target
	}
	return "", giterr.Newf("peel", string(h), giterr.ErrTooManyRedirects, "tag chain too long")
}

// PeelTo follows h until it reaches an object of type want: tags are
// dereferenced and commits yield their tree.
func (r *Repo) PeelTo(h object.Hash, want object.ObjectType) (object.Hash, error) {
	peeled, err := r.peelTag(h)
	if err != nil {
		return "", fmt.Errorf("peel %s: %w", h, err)
	}
	if want == object.TypeTag {
		objType, _, err := r.Store.ReadHeader(h)
		if err != nil {
			return "", err
		}
		if objType != object.TypeTag {
			return "", giterr.Newf("peel", string(h), giterr.ErrInvalidArgument, "%s is not a tag", objType)
		}
		return h, nil
	}
	objType, _, err := r.Store.ReadHeader(peeled)
	if err != nil {
		return "", err
	}
	switch {
	case objType == want:
		return peeled, nil
	case objType == object.TypeCommit && want == object.TypeTree:
		c, err := r.Store.ReadCommit(peeled)
		if err != nil {
			return "", err
		}
		return c.TreeHash, nil
	}
	return "", giterr.Newf("peel", string(h), giterr.ErrInvalidArgument, "cannot peel %s to %s", objType, want)
}
