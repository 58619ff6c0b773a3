package object

import (
	"fmt"
	"strconv"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// ParseObjectType validates a type tag read from an object header.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(s); t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return t, nil
	}
	return "", giterr.Newf("parse object type", s, giterr.ErrInvalidArgument, "unknown object type")
}

// FileMode is the git mode recorded for a tree or index entry.
type FileMode uint32

const (
	ModeTree       FileMode = 0o040000
	ModeBlob       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeGitlink    FileMode = 0o160000
)

// ParseFileMode parses an octal mode as written in tree objects ("40000",
// "100644", ...). The legacy group-writable blob mode 100664 normalizes to
// 100644.
func ParseFileMode(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, giterr.Newf("parse file mode", s, giterr.ErrInvalidArgument, "not octal")
	}
	m := FileMode(v)
	if m == 0o100664 {
		m = ModeBlob
	}
	if !m.IsValid() {
		return 0, giterr.Newf("parse file mode", s, giterr.ErrInvalidArgument, "unsupported mode")
	}
	return m, nil
}

// IsValid reports whether m is one of the five modes git records.
func (m FileMode) IsValid() bool {
	switch m {
	case ModeTree, ModeBlob, ModeExecutable, ModeSymlink, ModeGitlink:
		return true
	}
	return false
}

// String returns the tree-object spelling (no leading zero).
func (m FileMode) String() string { return strconv.FormatUint(uint64(m), 8) }

func (m FileMode) IsTree() bool { return m == ModeTree }

// IsFile reports whether the mode names blob content (regular,
// executable or symlink).
func (m FileMode) IsFile() bool {
	return m == ModeBlob || m == ModeExecutable || m == ModeSymlink
}

// ObjectType returns the object kind an entry with this mode refers to.
func (m FileMode) ObjectType() ObjectType {
	switch m {
	case ModeTree:
		return TypeTree
	case ModeGitlink:
		return TypeCommit
	}
	return TypeBlob
}

// Object is one of *Blob, *Tree, *Commit or *Tag. The set is closed;
// callers dispatch with a type switch.
type Object interface {
	Type() ObjectType
	sealed()
}

// Blob holds raw file data. It is never transformed by the store.
type Blob struct {
	Data []byte
}

func (*Blob) Type() ObjectType { return TypeBlob }
func (*Blob) sealed()          {}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode FileMode
	Hash Hash
}

// Tree holds entries in git tree order.
type Tree struct {
	Entries []TreeEntry
}

func (*Tree) Type() ObjectType { return TypeTree }
func (*Tree) sealed()          {}

// Entry returns the entry called name.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Signature identifies who made a commit or tag and when. When keeps the
// original UTC offset so re-encoding reproduces the same bytes.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Commit points at a tree and zero or more parents.
type Commit struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Encoding  string
	// ExtraHeaders keeps headers this package does not model (mergetag,
	// ...) so re-encoding reproduces the stored bytes.
	ExtraHeaders []ExtraHeader
	GPGSig       string
	Message      string
}

// ExtraHeader is an uninterpreted commit header. Value may span lines.
type ExtraHeader struct {
	Key   string
	Value string
}

func (*Commit) Type() ObjectType { return TypeCommit }
func (*Commit) sealed()          {}

// Summary returns the first line of the message.
func (c *Commit) Summary() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// Tag is an annotated tag.
type Tag struct {
	Target     Hash
	TargetType ObjectType
	Name       string
	Tagger     *Signature
	Message    string
}

func (*Tag) Type() ObjectType { return TypeTag }
func (*Tag) sealed()          {}
