package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// CreateBranch creates refs/heads/<name> pointing at the commit target
// resolves to. Unless force is set an existing branch fails with
// giterr.ErrAlreadyExists; the checked-out branch can never be forced.
func (r *Repo) CreateBranch(name string, target object.Hash, force bool) error {
	refName := refs.HeadsPrefix + name
	if !refs.ValidName(refName) || name == refs.HEAD {
		return giterr.New("create branch", name, giterr.ErrInvalidArgument)
	}
	commit, err := r.PeelTo(target, object.TypeCommit)
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	if force {
		if current, _ := r.CurrentBranch(); current == name {
			return giterr.Newf("create branch", name, giterr.ErrInvalidArgument, "cannot force update the current branch")
		}
	}
	msg := "branch: Created from " + string(commit)
	if force && r.Refs.Exists(refName) {
		msg = "branch: Reset to " + string(commit)
	}
	if _, err := r.Refs.Create(refName, commit, force, msg); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name> and its reflog.
// Returns an error if the branch is the current branch or does not exist.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return giterr.Newf("delete branch", name, giterr.ErrInvalidArgument, "cannot delete the current branch")
	}
	if err := r.Refs.Delete(refs.HeadsPrefix + name); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// RenameBranch moves a branch together with its reflog. HEAD follows when
// it named the old branch.
func (r *Repo) RenameBranch(oldName, newName string, force bool) error {
	from, to := refs.HeadsPrefix+oldName, refs.HeadsPrefix+newName
	msg := fmt.Sprintf("branch: renamed %s to %s", from, to)
	if _, err := r.Refs.Rename(from, to, force, msg); err != nil {
		return fmt.Errorf("rename branch %q: %w", oldName, err)
	}
	return nil
}

// ListBranches returns the branch names sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	list, err := r.Refs.List(refs.HeadsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(list))
	for _, ref := range list {
		names = append(names, strings.TrimPrefix(ref.Name, refs.HeadsPrefix))
	}
	return names, nil
}

// CurrentBranch returns the branch HEAD names ("main" for
// "ref: refs/heads/main"), even when it is unborn. If HEAD is detached it
// returns "".
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.HeadName()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if strings.HasPrefix(head, refs.HeadsPrefix) {
		return strings.TrimPrefix(head, refs.HeadsPrefix), nil
	}

	// Detached HEAD or unexpected format.
	return "", nil
}
