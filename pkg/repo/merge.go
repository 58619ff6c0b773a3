package repo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/merge"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// Files recording an in-progress merge.
const (
	mergeHeadFile = "MERGE_HEAD"
	mergeMsgFile  = "MERGE_MSG"
	mergeModeFile = "MERGE_MODE"
)

// State is the kind of operation a repository is in the middle of.
type State int

const (
	StateNone State = iota
	StateMerge
)

// FileMergeReport records an unresolved path of a merge.
type FileMergeReport struct {
	Path   string
	Status string // "conflict", "added by us", "deleted by them", ...
}

// MergeReport is the overall result of a repository-level merge.
type MergeReport struct {
	Analysis       merge.Analysis
	FastForward    bool        // HEAD moved to the merged commit
	Files          []FileMergeReport
	HasConflicts   bool
	TotalConflicts int
	MergeCommit    object.Hash // set if auto-committed (clean merge)
}

// MergeOptions configures Merge.
type MergeOptions struct {
	Trees merge.Options
	// NoCommit stages a clean result and records MERGE_HEAD instead of
	// committing it.
	NoCommit bool
	// NoFastForward always creates a merge commit, as merge.ff=false does.
	NoFastForward bool
	// FastForwardOnly refuses anything but a fast-forward.
	FastForwardOnly bool
	Message         string
	Signer          CommitSigner
}

// MergePreference reads merge.ff.
func (r *Repo) MergePreference() (merge.Preference, error) {
	v, _ := r.config.Get("merge.ff")
	return merge.ParsePreference(v)
}

// MergeAnalysis reports how theirs could be merged into HEAD, together
// with the configured fast-forward preference.
func (r *Repo) MergeAnalysis(theirs object.Hash) (merge.Analysis, merge.Preference, error) {
	pref, err := r.MergePreference()
	if err != nil {
		return merge.AnalysisNone, pref, fmt.Errorf("merge analysis: %w", err)
	}
	theirs, err = r.PeelTo(theirs, object.TypeCommit)
	if err != nil {
		return merge.AnalysisNone, pref, fmt.Errorf("merge analysis: %w", err)
	}
	unborn, err := r.HeadUnborn()
	if err != nil {
		return merge.AnalysisNone, pref, fmt.Errorf("merge analysis: %w", err)
	}
	if unborn {
		return merge.AnalysisFastForward | merge.AnalysisUnborn, pref, nil
	}
	head, err := r.HeadCommit()
	if err != nil {
		return merge.AnalysisNone, pref, fmt.Errorf("merge analysis: %w", err)
	}

	base, err := r.FindMergeBase(head, theirs)
	if err != nil {
		return merge.AnalysisNone, pref, fmt.Errorf("merge analysis: %w", err)
	}
	switch base {
	case theirs:
		return merge.AnalysisUpToDate, pref, nil
	case head:
		return merge.AnalysisNormal | merge.AnalysisFastForward, pref, nil
	}
	return merge.AnalysisNormal, pref, nil
}

// FastForward moves the branch HEAD names (or a detached HEAD) to target
// and resets the index to its tree. On an unborn branch the branch is
// created.
func (r *Repo) FastForward(target object.Hash, message string) error {
	target, err := r.PeelTo(target, object.TypeCommit)
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	head, err := r.HeadCommit()
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	name, err := r.updateTarget(refs.HEAD)
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if message == "" {
		message = "merge " + string(target) + ": Fast-forward"
	}
	if err := r.Refs.CompareAndSwap(name, target, head, message); err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if head != "" {
		if _, err := r.Refs.Create(refs.OrigHead, head, true, ""); err != nil {
			return fmt.Errorf("fast-forward: %w", err)
		}
	}
	return r.resetIndex(target)
}

// resetIndex replaces the index with the tree of commit.
func (r *Repo) resetIndex(commit object.Hash) error {
	tree, err := r.PeelTo(commit, object.TypeTree)
	if err != nil {
		return err
	}
	idx, err := r.Index()
	if err != nil {
		return err
	}
	if err := idx.ReadTree(r.Store, tree); err != nil {
		return err
	}
	return idx.Write()
}

// checkIndexMatchesHead fails with giterr.ErrLocalChanges unless the
// index holds exactly the tree of HEAD (nothing, on an unborn branch).
func (r *Repo) checkIndexMatchesHead(op string) error {
	idx, err := r.Index()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	want, err := r.headIndex()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	have, expected := idx.Entries(), want.Entries()
	for i := 0; i < len(have) || i < len(expected); i++ {
		switch {
		case i >= len(have):
			return giterr.Newf(op, expected[i].Path, giterr.ErrLocalChanges, "staged removal")
		case i >= len(expected):
			return giterr.Newf(op, have[i].Path, giterr.ErrLocalChanges, "staged but not in HEAD")
		}
		h, e := have[i], expected[i]
		if h.Path != e.Path {
			if h.Path < e.Path {
				return giterr.Newf(op, h.Path, giterr.ErrLocalChanges, "staged but not in HEAD")
			}
			return giterr.Newf(op, e.Path, giterr.ErrLocalChanges, "staged removal")
		}
		if h.Stage != e.Stage || h.Mode != e.Mode || h.Hash != e.Hash {
			return giterr.Newf(op, h.Path, giterr.ErrLocalChanges, "staged changes differ from HEAD")
		}
	}
	return nil
}

// MergeCommits merges theirs into ours against their merge base and
// returns the result as an in-memory index. Disjoint histories merge
// against the empty tree.
func (r *Repo) MergeCommits(ours, theirs object.Hash, opts merge.Options) (*index.Index, error) {
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	base, err := r.FindMergeBase(ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge commits: %w", err)
	}
	var baseTree object.Hash
	if base != "" {
		if baseTree, err = r.PeelTo(base, object.TypeTree); err != nil {
			return nil, fmt.Errorf("merge commits: %w", err)
		}
	}
	oursTree, err := r.PeelTo(ours, object.TypeTree)
	if err != nil {
		return nil, fmt.Errorf("merge commits: %w", err)
	}
	theirsTree, err := r.PeelTo(theirs, object.TypeTree)
	if err != nil {
		return nil, fmt.Errorf("merge commits: %w", err)
	}
	idx, err := merge.Trees(r.Store, baseTree, oursTree, theirsTree, opts)
	if err != nil {
		return nil, fmt.Errorf("merge commits: %w", err)
	}
	return idx, nil
}

// Merge merges the commit named by spec (a branch, tag or any revision
// RevParse accepts) into HEAD.
//
// Algorithm:
//  1. Resolve spec to a commit and analyze it against HEAD
//  2. Up to date: nothing to do; otherwise the index must match HEAD
//  3. Fast-forward when allowed: move the branch and reset the index
//  4. Otherwise merge the trees against the merge base into the index
//  5. If clean: commit with two parents unless NoCommit is set
//  6. If conflicts: record MERGE_HEAD and MERGE_MSG, do NOT commit
func (r *Repo) Merge(spec string, opts MergeOptions) (*MergeReport, error) {
	if state, err := r.State(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	} else if state != StateNone {
		return nil, giterr.Newf("merge", spec, giterr.ErrLocked, "a merge is already in progress")
	}

	// 1. Resolve and analyze.
	theirs, err := r.RevParse(spec)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if theirs, err = r.PeelTo(theirs, object.TypeCommit); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	analysis, pref, err := r.MergeAnalysis(theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	noFF := opts.NoFastForward || pref == merge.PreferenceNoFastForward
	ffOnly := opts.FastForwardOnly || pref == merge.PreferenceFastForwardOnly
	report := &MergeReport{Analysis: analysis}
	r.logger.Debug("merge analysis", "spec", spec, "commit", theirs, "analysis", analysis, "preference", pref)

	// 2. Up to date.
	if analysis.Has(merge.AnalysisUpToDate) {
		return report, nil
	}

	if err := r.checkIndexMatchesHead("merge"); err != nil {
		return nil, err
	}

	// 3. Fast-forward.
	if analysis.Has(merge.AnalysisFastForward) && (!noFF || analysis.Has(merge.AnalysisUnborn)) {
		if err := r.FastForward(theirs, "merge "+spec+": Fast-forward"); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		report.FastForward = true
		return report, nil
	}
	if ffOnly {
		return nil, giterr.Newf("merge", spec, giterr.ErrInvalidArgument, "not possible to fast-forward")
	}

	// 4. Three-way merge.
	ours, err := r.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	merged, err := r.MergeCommits(ours, theirs, opts.Trees)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	idx, err := r.Index()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	idx.Clear()
	for _, e := range merged.Entries() {
		if err := idx.Add(e); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	if err := idx.Write(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if _, err := r.Refs.Create(refs.OrigHead, ours, true, ""); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	message := opts.Message
	if message == "" {
		message = defaultMergeMessage(spec)
	}
	for _, c := range merged.Conflicts() {
		report.Files = append(report.Files, FileMergeReport{Path: c.Path, Status: conflictStatus(c)})
	}
	report.TotalConflicts = len(report.Files)
	report.HasConflicts = report.TotalConflicts > 0

	// 6. Conflicts, or a clean result the caller wants to commit later.
	if report.HasConflicts || opts.NoCommit {
		if err := r.writeMergeState(theirs, message, report.Files, noFF); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return report, nil
	}

	// 5. Clean: commit.
	tree, err := idx.WriteTree(r.Store)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	who := r.Identity()
	h, err := r.CreateCommit(refs.HEAD, who, who, message, tree, []object.Hash{ours, theirs}, opts.Signer)
	if err != nil {
		return nil, fmt.Errorf("merge: commit: %w", err)
	}
	report.MergeCommit = h
	return report, nil
}

func defaultMergeMessage(spec string) string {
	kind := "commit"
	switch {
	case strings.HasPrefix(spec, refs.HeadsPrefix):
		kind, spec = "branch", strings.TrimPrefix(spec, refs.HeadsPrefix)
	case strings.HasPrefix(spec, refs.TagsPrefix):
		kind, spec = "tag", strings.TrimPrefix(spec, refs.TagsPrefix)
	case !object.IsHexPrefix(spec):
		kind = "branch"
	}
	return fmt.Sprintf("Merge %s '%s'\n", kind, spec)
}

func conflictStatus(c index.Conflict) string {
	switch {
	case c.Ours != nil && c.Theirs != nil && c.Ancestor == nil:
		return "both added"
	case c.Ours != nil && c.Theirs != nil:
		return "both modified"
	case c.Ours != nil && c.Ancestor != nil:
		return "deleted by them"
	case c.Theirs != nil && c.Ancestor != nil:
		return "deleted by us"
	case c.Ours != nil:
		return "added by us"
	case c.Theirs != nil:
		return "added by them"
	}
	return "both deleted"
}

func (r *Repo) writeMergeState(theirs object.Hash, message string, conflicts []FileMergeReport, noFF bool) error {
	if err := lockfile.WriteFile(r.path(mergeHeadFile), []byte(string(theirs)+"\n"), lockfile.DefaultWait); err != nil {
		return err
	}
	var msg bytes.Buffer
	msg.WriteString(message)
	if len(conflicts) > 0 {
		msg.WriteString("\n# Conflicts:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&msg, "#\t%s\n", c.Path)
		}
	}
	if err := lockfile.WriteFile(r.path(mergeMsgFile), msg.Bytes(), lockfile.DefaultWait); err != nil {
		return err
	}
	mode := ""
	if noFF {
		mode = "no-ff"
	}
	return lockfile.WriteFile(r.path(mergeModeFile), []byte(mode), lockfile.DefaultWait)
}

// MergeHeads returns the commits recorded in MERGE_HEAD, or nil when no
// merge is in progress.
func (r *Repo) MergeHeads() ([]object.Hash, error) {
	data, err := os.ReadFile(r.path(mergeHeadFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mergeHeadFile, err)
	}
	var out []object.Hash
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		h, err := object.ParseHash(line)
		if err != nil {
			return nil, giterr.Newf("read "+mergeHeadFile, line, giterr.ErrCorruption, "%v", err)
		}
		out = append(out, h)
	}
	return out, nil
}

// MergeMessage returns the prepared MERGE_MSG, or "" when there is none.
func (r *Repo) MergeMessage() (string, error) {
	data, err := os.ReadFile(r.path(mergeMsgFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", mergeMsgFile, err)
	}
	return string(data), nil
}

// State reports whether a merge is in progress.
func (r *Repo) State() (State, error) {
	_, err := os.Stat(r.path(mergeHeadFile))
	switch {
	case err == nil:
		return StateMerge, nil
	case errors.Is(err, fs.ErrNotExist):
		return StateNone, nil
	}
	return StateNone, fmt.Errorf("repository state: %w", err)
}

// StateCleanup removes the files recording an in-progress merge.
func (r *Repo) StateCleanup() error {
	for _, name := range []string{mergeHeadFile, mergeMsgFile, mergeModeFile} {
		if err := os.Remove(r.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("state cleanup: %w", err)
		}
	}
	return nil
}
