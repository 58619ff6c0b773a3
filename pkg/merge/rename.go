package merge

import (
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
)

// detectRenames pairs paths deleted from base in s with paths added in
// s. Destinations present in other are not considered, so a rename
// never lands on a path the other side also created. The result maps
// the ancestor path to its new name.
func (m *merger) detectRenames(base, s, other side) (map[string]string, error) {
	var deleted, added []string
	for p, e := range base {
		if _, ok := s[p]; !ok && e.Mode != object.ModeGitlink {
			deleted = append(deleted, p)
		}
	}
	for p, e := range s {
		_, inBase := base[p]
		_, inOther := other[p]
		if !inBase && !inOther && e.Mode != object.ModeGitlink {
			added = append(added, p)
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return nil, nil
	}
	sort.Strings(deleted)
	sort.Strings(added)

	renames := make(map[string]string)
	claimed := make(map[string]bool)

	// Exact: identical content.
	byHash := make(map[object.Hash][]string)
	for _, p := range added {
		h := s[p].Hash
		byHash[h] = append(byHash[h], p)
	}
	var pending []string
	for _, p := range deleted {
		matched := false
		for _, dst := range byHash[base[p].Hash] {
			if !claimed[dst] {
				renames[p] = dst
				claimed[dst] = true
				matched = true
				break
			}
		}
		if !matched {
			pending = append(pending, p)
		}
	}

	var targets []string
	for _, p := range added {
		if !claimed[p] {
			targets = append(targets, p)
		}
	}
	if len(pending) == 0 || len(targets) == 0 {
		return renames, nil
	}
	if len(pending) > m.opts.RenameLimit || len(targets) > m.opts.RenameLimit {
		m.logger.Debug("inexact rename detection skipped", "sources", len(pending), "destinations", len(targets), "limit", m.opts.RenameLimit)
		return renames, nil
	}

	// Inexact: best similarity first.
	type candidate struct {
		src, dst string
		score    int
	}
	var cands []candidate
	for _, src := range pending {
		srcData, err := m.blob(base[src].Hash)
		if err != nil {
			return nil, err
		}
		for _, dst := range targets {
			dstData, err := m.blob(s[dst].Hash)
			if err != nil {
				return nil, err
			}
			if score := similarity(srcData, dstData); score >= m.opts.RenameThreshold {
				cands = append(cands, candidate{src: src, dst: dst, score: score})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	for _, c := range cands {
		if _, done := renames[c.src]; done || claimed[c.dst] {
			continue
		}
		m.logger.Debug("rename detected", "from", c.src, "to", c.dst, "score", c.score)
		renames[c.src] = c.dst
		claimed[c.dst] = true
	}
	return renames, nil
}

// similarity scores two contents from 0 to 100 by the bytes of lines
// they share, relative to the larger of the two.
func similarity(a, b []byte) int {
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	counts := make(map[string]int)
	for _, l := range strings.SplitAfter(string(a), "\n") {
		if l != "" {
			counts[l]++
		}
	}
	common := 0
	for _, l := range strings.SplitAfter(string(b), "\n") {
		if counts[l] > 0 {
			counts[l]--
			common += len(l)
		}
	}
	return common * 100 / max(len(a), len(b))
}

// applyRenames moves each renamed entry back to its ancestor path so the
// per-path merge lines it up with the other side.
func applyRenames(s side, renames map[string]string) side {
	if len(renames) == 0 {
		return s
	}
	out := make(side, len(s))
	for p, e := range s {
		out[p] = e
	}
	for src, dst := range renames {
		out[src] = s[dst]
		delete(out, dst)
	}
	return out
}
