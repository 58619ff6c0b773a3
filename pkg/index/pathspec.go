package index

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// Pathspec selects paths the way git's default pathspec magic does: a
// literal item matches the path itself or anything under it, and an item
// with glob characters is matched against the whole path with "*" free
// to cross "/". No items, or the item ".", match everything.
type Pathspec struct {
	items []pathspecItem
}

type pathspecItem struct {
	raw     string
	literal string
	g       glob.Glob
}

// ParsePathspec compiles the given items.
func ParsePathspec(specs []string) (*Pathspec, error) {
	ps := &Pathspec{}
	for _, raw := range specs {
		s := strings.TrimPrefix(raw, "./")
		s = strings.TrimRight(s, "/")
		if s == "." {
			s = ""
		}
		item := pathspecItem{raw: raw, literal: s}
		if strings.ContainsAny(s, "*?[") {
			g, err := glob.Compile(braceEscaper.Replace(s))
			if err != nil {
				return nil, giterr.Newf("parse pathspec", raw, giterr.ErrInvalidArgument, "%v", err)
			}
			item.g = g
		}
		ps.items = append(ps.items, item)
	}
	return ps, nil
}

// Match reports whether p is selected and, if so, by which item (as given
// to ParsePathspec). An empty pathspec selects every path with item "".
func (ps *Pathspec) Match(p string) (string, bool) {
	if ps == nil || len(ps.items) == 0 {
		return "", true
	}
	for _, it := range ps.items {
		if it.matches(p) {
			return it.raw, true
		}
	}
	return "", false
}

func (it pathspecItem) matches(p string) bool {
	if it.g != nil {
		return it.g.Match(p)
	}
	return it.literal == "" || p == it.literal || strings.HasPrefix(p, it.literal+"/")
}

// literals returns the items without glob characters.
func (ps *Pathspec) literals() []string {
	var out []string
	for _, it := range ps.items {
		if it.g == nil && it.literal != "" {
			out = append(out, it.raw)
		}
	}
	return out
}
