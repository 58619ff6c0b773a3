package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/refs"
)

// ReadReflog returns up to limit entries (all when limit <= 0) of a
// reference's reflog, newest first. ref may be a short name; "" is HEAD.
func (r *Repo) ReadReflog(ref string, limit int) ([]refs.ReflogEntry, error) {
	refName := r.resolveReflogRefName(ref)
	entries, err := r.Refs.Reflog(refName)
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// DropReflogEntry deletes entry n (0 is newest) of ref's reflog, keeping
// the chain of old ids consistent.
func (r *Repo) DropReflogEntry(ref string, n int) error {
	if err := r.Refs.DropReflogEntry(r.resolveReflogRefName(ref), n, true); err != nil {
		return fmt.Errorf("drop reflog entry: %w", err)
	}
	return nil
}

func (r *Repo) resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "@" {
		return refs.HEAD
	}
	for _, c := range refs.Candidates(ref) {
		if refs.ValidName(c) && (r.Refs.HasLog(c) || r.Refs.Exists(c)) {
			return c
		}
	}
	return ref
}
