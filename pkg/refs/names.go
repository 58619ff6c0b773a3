package refs

import (
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// Well-known reference names.
const (
	HEAD      = "HEAD"
	OrigHead  = "ORIG_HEAD"
	MergeHead = "MERGE_HEAD"
	FetchHead = "FETCH_HEAD"

	HeadsPrefix   = "refs/heads/"
	TagsPrefix    = "refs/tags/"
	RemotesPrefix = "refs/remotes/"
	NotesPrefix   = "refs/notes/"
)

// ValidName reports whether name is a well-formed reference name: either
// a one-level all-caps pseudo ref (HEAD, ORIG_HEAD, ...) or a name under
// refs/ that git's check-ref-format would accept.
func ValidName(name string) bool {
	if name == "" || name == "@" {
		return false
	}
	if !strings.Contains(name, "/") {
		return isPseudoRef(name)
	}
	if !strings.HasPrefix(name, "refs/") {
		return false
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == 0x7f {
			return false
		}
		switch c {
		case ' ', '~', '^', ':', '?', '[', '*', '\\':
			return false
		}
	}
	for _, comp := range strings.Split(name, "/") {
		if comp == "" || comp[0] == '.' || strings.HasSuffix(comp, ".lock") {
			return false
		}
	}
	return true
}

func isPseudoRef(name string) bool {
	if name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

func checkName(op, name string) error {
	if !ValidName(name) {
		return giterr.New(op, name, giterr.ErrInvalidArgument)
	}
	return nil
}

// ShortName strips the conventional prefix from a full ref name
// ("refs/heads/main" -> "main").
func ShortName(name string) string {
	for _, p := range []string{HeadsPrefix, TagsPrefix, RemotesPrefix, NotesPrefix, "refs/"} {
		if strings.HasPrefix(name, p) {
			return strings.TrimPrefix(name, p)
		}
	}
	return name
}

// Candidates lists the full names a short name may refer to, in the
// order git tries them.
func Candidates(short string) []string {
	if strings.HasPrefix(short, "refs/") {
		return []string{short}
	}
	return []string{
		short,
		"refs/" + short,
		TagsPrefix + short,
		HeadsPrefix + short,
		RemotesPrefix + short,
		RemotesPrefix + short + "/HEAD",
	}
}

// shouldAutoLog reports whether updates to name create a reflog when
// core.logAllRefUpdates is enabled.
func shouldAutoLog(name string) bool {
	return name == HEAD ||
		strings.HasPrefix(name, HeadsPrefix) ||
		strings.HasPrefix(name, RemotesPrefix) ||
		strings.HasPrefix(name, NotesPrefix)
}
