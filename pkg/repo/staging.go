package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
)

// Worktree returns the working directory as an index.Worktree honoring
// .gitignore files and core.filemode.
func (r *Repo) Worktree() (*index.Worktree, error) {
	if r.Bare() {
		return nil, giterr.Newf("worktree", r.GitDir, giterr.ErrInvalidArgument, "bare repository")
	}
	wt := index.NewWorktree(osfs.New(r.RootDir), r.Store)
	wt.TrustExecutable = r.config.Bool("core.filemode", true)
	return wt, nil
}

// Add stages the given file paths. Each path is resolved relative to the
// repo root; its content is written as a blob and its index entry replaced,
// resolving any conflict recorded for it.
func (r *Repo) Add(paths []string) error {
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: resolve path %q: %w", p, err)
		}
		if err := idx.AddByPath(wt, relPath); err != nil {
			return fmt.Errorf("add: %w", err)
		}
	}
	if err := idx.Write(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// AddAll stages every worktree file matching pathspecs (all files when
// empty), skipping ignored untracked ones unless force is set.
func (r *Repo) AddAll(pathspecs []string, force bool, cb index.MatchedPathFunc) error {
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	wt.Force = force
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := idx.AddAll(wt, pathspecs, cb); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := idx.Write(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// Remove unstages every index entry matching pathspecs. With cached unset
// the files are deleted from the working directory too.
func (r *Repo) Remove(pathspecs []string, cached bool) ([]string, error) {
	idx, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("rm: %w", err)
	}
	var removed []string
	err = idx.RemoveAll(pathspecs, func(p, _ string) (bool, error) {
		removed = append(removed, p)
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rm: %w", err)
	}
	if len(removed) == 0 {
		return nil, giterr.Newf("rm", strings.Join(pathspecs, " "), giterr.ErrNotFound, "pathspec did not match any files")
	}
	if err := idx.Write(); err != nil {
		return nil, fmt.Errorf("rm: %w", err)
	}
	if !cached && !r.Bare() {
		for _, p := range removed {
			if err := os.Remove(filepath.Join(r.RootDir, filepath.FromSlash(p))); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("rm %s: %w", p, err)
			}
		}
	}
	return removed, nil
}

// Reset unstages paths by restoring index entries to their HEAD versions.
//
// Behavior:
// - If a path exists in HEAD, its index entry is reset to HEAD's blob/mode.
// - If a path does not exist in HEAD, its index entry is removed.
// - If no paths are provided, the entire index is reset to HEAD.
//
// Reset does not modify the working tree.
func (r *Repo) Reset(paths []string) error {
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	headIdx, err := r.headIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if len(paths) == 0 {
		idx.Clear()
		for _, e := range headIdx.Entries() {
			if err := idx.Add(e); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
		return idx.Write()
	}

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("reset: resolve path %q: %w", p, err)
		}
		for _, stage := range []index.Stage{index.StageNormal, index.StageAncestor, index.StageOurs, index.StageTheirs} {
			_ = idx.Remove(relPath, stage)
		}
		if e, ok := headIdx.Get(relPath, index.StageNormal); ok {
			if err := idx.Add(e); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
	}
	if err := idx.Write(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// repoRelPath converts a path (absolute, or relative to CWD) into a path
// relative to the repository root. If the path is already relative and does
// not start with the repo root, it is assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", giterr.Newf("resolve path", p, giterr.ErrInvalidArgument, "outside repository %s", r.RootDir)
		}
		return filepath.ToSlash(rel), nil
	}

	// Try to resolve via CWD.
	cwd, err := os.Getwd()
	if err != nil {
		// Fall through to treating p as repo-relative.
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(r.RootDir, filepath.Join(cwd, p))
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}

// headIndex returns an in-memory index holding the tree of HEAD, empty on
// an unborn branch.
func (r *Repo) headIndex() (*index.Index, error) {
	idx := index.New(r.Algorithm())
	head, err := r.HeadCommit()
	if err != nil || head == "" {
		return idx, err
	}
	tree, err := r.PeelTo(head, object.TypeTree)
	if err != nil {
		return nil, err
	}
	if err := idx.ReadTree(r.Store, tree); err != nil {
		return nil, err
	}
	return idx, nil
}
