package repo

import (
	"fmt"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// VerifyReport summarizes a repository integrity check.
type VerifyReport struct {
	object.VerifyReport
	Refs      int           // references whose history was walked
	Reachable int           // objects reachable from them
	Missing   []object.Hash // referenced but absent objects
	Dangling  int           // stored objects no reference reaches
}

// OK reports whether no corruption or missing object was found.
func (v VerifyReport) OK() bool { return len(v.Corrupt) == 0 && len(v.Missing) == 0 }

// Verify re-hashes every loose object and walks everything reachable from
// HEAD, all references and MERGE_HEAD, recording objects that are missing.
func (r *Repo) Verify() (VerifyReport, error) {
	var report VerifyReport
	integrity, err := r.Store.Verify()
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	report.VerifyReport = integrity

	var roots []object.Hash
	if h, err := r.HeadCommit(); err != nil {
		return report, fmt.Errorf("verify: %w", err)
	} else if h != "" {
		roots = append(roots, h)
	}
	all, err := r.Refs.List("refs/")
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	for _, ref := range all {
		direct, err := r.Refs.Resolve(ref)
		if err != nil {
			r.logger.Warn("unresolvable reference", "ref", ref.Name, "error", err)
			continue
		}
		roots = append(roots, direct.Target)
		report.Refs++
	}
	for _, name := range []string{refs.OrigHead} {
		if h, err := r.Refs.ResolveName(name); err == nil {
			roots = append(roots, h)
		}
	}
	heads, err := r.MergeHeads()
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	roots = append(roots, heads...)

	reachable, missing, err := r.Store.ReachableSet(roots)
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	report.Reachable = len(reachable)
	report.Missing = missing
	stored, err := r.Store.List()
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	for _, h := range stored {
		if _, ok := reachable[h]; !ok {
			report.Dangling++
		}
	}
	for _, h := range missing {
		r.logger.Warn("missing object", "hash", h)
	}
	return report, nil
}
