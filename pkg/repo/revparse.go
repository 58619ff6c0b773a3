package repo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// RevParse resolves a revision expression to an object id. It accepts:
//
//	<hex>            full or abbreviated (at least 4 digits) object id
//	<name>           reference, resolved like ResolveRef; "@" is HEAD
//	<name>@{n}       n-th prior value from the reference's reflog
//	<rev>~<n>        n-th first-parent ancestor (~ alone is ~1)
//	<rev>^<n>        n-th parent (^ alone is ^1, ^0 is the commit itself)
//	<rev>^{<type>}   peel to commit, tree, blob or tag; ^{} peels tags
//
// Malformed expressions fail with giterr.ErrInvalidArgument, unknown names
// with giterr.ErrNotFound.
func (r *Repo) RevParse(spec string) (object.Hash, error) {
	if spec == "" {
		return "", giterr.New("rev-parse", spec, giterr.ErrInvalidArgument)
	}
	base, rest := splitRevision(spec)
	h, err := r.revBase(spec, base)
	if err != nil {
		return "", err
	}
	for rest != "" {
		op := rest[0]
		rest = rest[1:]
		switch {
		case op == '^' && strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return "", giterr.Newf("rev-parse", spec, giterr.ErrInvalidArgument, "unterminated ^{")
			}
			if h, err = r.revPeel(spec, h, rest[1:end]); err != nil {
				return "", err
			}
			rest = rest[end+1:]
		case op == '^' || op == '~':
			n, consumed := leadingNumber(rest)
			rest = rest[consumed:]
			if consumed == 0 {
				n = 1
			}
			if op == '^' {
				h, err = r.revParent(spec, h, n)
			} else {
				h, err = r.revAncestor(spec, h, n)
			}
			if err != nil {
				return "", err
			}
		default:
			return "", giterr.Newf("rev-parse", spec, giterr.ErrInvalidArgument, "unexpected %q", op)
		}
	}
	return h, nil
}

// splitRevision separates the leading name (including any @{...}
// selector) from the chain of ^ and ~ operators.
func splitRevision(spec string) (base, rest string) {
	depth := 0
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '^', '~':
			if depth == 0 {
				return spec[:i], spec[i:]
			}
		}
	}
	return spec, ""
}

func leadingNumber(s string) (n, consumed int) {
	for consumed < len(s) && s[consumed] >= '0' && s[consumed] <= '9' {
		consumed++
	}
	if consumed == 0 {
		return 0, 0
	}
	n, err := strconv.Atoi(s[:consumed])
	if err != nil {
		return 0, 0
	}
	return n, consumed
}

func (r *Repo) revBase(spec, base string) (object.Hash, error) {
	if at := strings.Index(base, "@{"); at >= 0 {
		if !strings.HasSuffix(base, "}") {
			return "", giterr.Newf("rev-parse", spec, giterr.ErrInvalidArgument, "unterminated @{")
		}
		return r.revReflog(spec, base[:at], base[at+2:len(base)-1])
	}
	if base == "" || base == "@" {
		base = refs.HEAD
	}

	if len(base) == r.Algorithm().HexSize() && object.IsHexPrefix(base) {
		h := object.Hash(strings.ToLower(base))
		if !r.Store.Has(h) {
			return "", giterr.New("rev-parse", spec, giterr.ErrNotFound)
		}
		return h, nil
	}
	h, err := r.ResolveRef(base)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, giterr.ErrNotFound) {
		return "", err
	}
	if len(base) >= object.MinPrefixLen && object.IsHexPrefix(base) {
		h, err := r.Store.ExistsPrefix(strings.ToLower(base))
		if err != nil {
			return "", fmt.Errorf("rev-parse %s: %w", spec, err)
		}
		return h, nil
	}
	for _, c := range base {
		if c == ' ' || c == ':' || c == '?' || c == '*' || c == '[' || c == '\\' {
			return "", giterr.New("rev-parse", spec, giterr.ErrInvalidArgument)
		}
	}
	return "", giterr.New("rev-parse", spec, giterr.ErrNotFound)
}

// revReflog resolves name@{n}. An empty name is the branch HEAD names.
func (r *Repo) revReflog(spec, name, selector string) (object.Hash, error) {
	n, consumed := leadingNumber(selector)
	if consumed == 0 || consumed != len(selector) {
		return "", giterr.Newf("rev-parse", spec, giterr.ErrInvalidArgument, "unsupported reflog selector %q", selector)
	}
	full := refs.HEAD
	switch name {
	case "":
		head, err := r.HeadName()
		if err != nil {
			return "", err
		}
		full = head
	case "@", refs.HEAD:
	default:
		full = ""
		for _, c := range refs.Candidates(name) {
			if refs.ValidName(c) && r.Refs.Exists(c) {
				full = c
				break
			}
		}
		if full == "" {
			return "", giterr.New("rev-parse", spec, giterr.ErrNotFound)
		}
	}
	entries, err := r.Refs.Reflog(full)
	if err != nil {
		return "", fmt.Errorf("rev-parse %s: %w", spec, err)
	}
	if n >= len(entries) {
		return "", giterr.Newf("rev-parse", spec, giterr.ErrNotFound, "log for %s has only %d entries", full, len(entries))
	}
	return entries[n].New, nil
}

func (r *Repo) revPeel(spec string, h object.Hash, kind string) (object.Hash, error) {
	var want object.ObjectType
	switch kind {
	case "":
		return r.Peel(h)
	case "commit":
		want = object.TypeCommit
	case "tree":
		want = object.TypeTree
	case "blob":
		want = object.TypeBlob
	case "tag":
		want = object.TypeTag
	default:
		return "", giterr.Newf("rev-parse", spec, giterr.ErrInvalidArgument, "unknown object type %q", kind)
	}
	out, err := r.PeelTo(h, want)
	if err != nil {
		return "", fmt.Errorf("rev-parse %s: %w", spec, err)
	}
	return out, nil
}

func (r *Repo) revCommit(spec string, h object.Hash) (object.Hash, *object.Commit, error) {
	ch, err := r.PeelTo(h, object.TypeCommit)
	if err != nil {
		return "", nil, fmt.Errorf("rev-parse %s: %w", spec, err)
	}
	c, err := r.Store.ReadCommit(ch)
	if err != nil {
		return "", nil, fmt.Errorf("rev-parse %s: %w", spec, err)
	}
	return ch, c, nil
}

func (r *Repo) revParent(spec string, h object.Hash, n int) (object.Hash, error) {
	ch, c, err := r.revCommit(spec, h)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return ch, nil
	}
	if n > len(c.Parents) {
		return "", giterr.Newf("rev-parse", spec, giterr.ErrNotFound, "%s has no parent %d", ch, n)
	}
	return c.Parents[n-1], nil
}

func (r *Repo) revAncestor(spec string, h object.Hash, n int) (object.Hash, error) {
	ch, _, err := r.revCommit(spec, h)
	if err != nil {
		return "", err
	}
	for range n {
		if ch, err = r.revParent(spec, ch, 1); err != nil {
			return "", err
		}
	}
	return ch, nil
}
