package object

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// TreeEntryLess orders tree entries the way git does: by name bytes, with
// subtrees compared as if their name ended in "/".
func TreeEntryLess(a, b TreeEntry) bool {
	return compareTreeNames(a.Name, a.Mode.IsTree(), b.Name, b.Mode.IsTree()) < 0
}

func compareTreeNames(a string, aDir bool, b string, bDir bool) int {
	n := min(len(a), len(b))
	if c := strings.Compare(a[:n], b[:n]); c != 0 {
		return c
	}
	var ca, cb byte
	if len(a) > n {
		ca = a[n]
	} else if aDir {
		ca = '/'
	}
	if len(b) > n {
		cb = b[n]
	} else if bDir {
		cb = '/'
	}
	switch {
	case ca < cb:
		return -1
	case ca > cb:
		return 1
	}
	return 0
}

// SortTreeEntries sorts entries in place into git tree order.
func SortTreeEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return TreeEntryLess(entries[i], entries[j])
	})
}

// MarshalTree serializes a Tree in git's binary form:
//
//	<octal mode> <name>\0<raw id>
//
// Entries are sorted first, so the encoding does not depend on the order
// they were supplied in. Names must be valid and unique, whatever their
// mode, and every id must be an algo-sized hex id.
func MarshalTree(algo HashAlgorithm, tr *Tree) ([]byte, error) {
	names := make(map[string]struct{}, len(tr.Entries))
	for _, e := range tr.Entries {
		if !ValidEntryName(e.Name) {
			return nil, giterr.Newf("marshal tree", e.Name, giterr.ErrInvalidArgument, "invalid entry name")
		}
		if _, dup := names[e.Name]; dup {
			return nil, giterr.Newf("marshal tree", e.Name, giterr.ErrInvalidArgument, "duplicate entry")
		}
		names[e.Name] = struct{}{}
		if !e.Mode.IsValid() {
			return nil, giterr.Newf("marshal tree", e.Name, giterr.ErrInvalidArgument, "invalid mode %o", uint32(e.Mode))
		}
		if len(e.Hash) != algo.HexSize() || !isHex(string(e.Hash)) {
			return nil, giterr.Newf("marshal tree", e.Name, giterr.ErrInvalidArgument, "invalid %s id %q", algo, e.Hash)
		}
	}

	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortTreeEntries(sorted)

	var buf bytes.Buffer
	for _, e := range sorted {
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash.Bytes())
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a binary tree whose ids are algo-sized.
func UnmarshalTree(algo HashAlgorithm, data []byte) (*Tree, error) {
	tr := &Tree{}
	size := algo.Size()
	for pos := 0; pos < len(data); {
		sp := bytes.IndexByte(data[pos:], ' ')
		if sp < 0 {
			return nil, giterr.Newf("unmarshal tree", "", giterr.ErrCorruption, "missing mode separator at %d", pos)
		}
		mode, err := ParseFileMode(string(data[pos : pos+sp]))
		if err != nil {
			return nil, giterr.Newf("unmarshal tree", "", giterr.ErrCorruption, "%v", err)
		}
		nul := bytes.IndexByte(data[pos+sp:], 0)
		if nul < 0 {
			return nil, giterr.Newf("unmarshal tree", "", giterr.ErrCorruption, "missing name terminator at %d", pos)
		}
		name := string(data[pos+sp+1 : pos+sp+nul])
		idStart := pos + sp + nul + 1
		if idStart+size > len(data) {
			return nil, giterr.Newf("unmarshal tree", name, giterr.ErrCorruption, "truncated id")
		}
		h, _ := HashFromBytes(data[idStart : idStart+size])
		tr.Entries = append(tr.Entries, TreeEntry{Name: name, Mode: mode, Hash: h})
		pos = idStart + size
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit serializes a Commit:
//
//	tree H
//	parent H        (zero or more)
//	author S
//	committer S
//	encoding E      (optional)
//	<extra headers>
//	gpgsig ...      (optional, continuation lines indented by one space)
//
//	message
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", EncodeSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", EncodeSignature(c.Committer))
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		writeHeader(&buf, h.Key, h.Value)
	}
	if c.GPGSig != "" {
		writeHeader(&buf, "gpgsig", c.GPGSig)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(strings.ReplaceAll(strings.TrimSuffix(value, "\n"), "\n", "\n "))
	buf.WriteByte('\n')
}

type header struct {
	key, value string
}

// splitHeaders separates the header block from the message and folds
// continuation lines (leading space) into the preceding header.
func splitHeaders(data []byte) ([]header, string, error) {
	var block, message string
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		block = string(data[:idx])
		message = string(data[idx+2:])
	} else {
		block = strings.TrimSuffix(string(data), "\n")
	}

	var headers []header
	for _, line := range strings.Split(block, "\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' {
			if len(headers) == 0 {
				return nil, "", fmt.Errorf("continuation line without header")
			}
			last := &headers[len(headers)-1]
			last.value += "\n" + line[1:]
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, "", fmt.Errorf("malformed header line %q", line)
		}
		headers = append(headers, header{key: key, value: val})
	}
	return headers, message, nil
}

// UnmarshalCommit parses a Commit from its canonical form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, giterr.Newf("unmarshal commit", "", giterr.ErrCorruption, "%v", err)
	}

	c := &Commit{Message: message}
	var sawTree, sawAuthor, sawCommitter bool
	for _, h := range headers {
		switch h.key {
		case "tree":
			if sawTree {
				return nil, giterr.Newf("unmarshal commit", "", giterr.ErrCorruption, "duplicate tree header")
			}
			c.TreeHash, err = ParseHash(h.value)
			if err != nil {
				return nil, giterr.Newf("unmarshal commit", "", giterr.ErrCorruption, "bad tree %q", h.value)
			}
			sawTree = true
		case "parent":
			p, err := ParseHash(h.value)
			if err != nil {
				return nil, giterr.Newf("unmarshal commit", "", giterr.ErrCorruption, "bad parent %q", h.value)
			}
			c.Parents = append(c.Parents, p)
		case "author":
			if c.Author, err = ParseSignature(h.value); err != nil {
				return nil, err
			}
			sawAuthor = true
		case "committer":
			if c.Committer, err = ParseSignature(h.value); err != nil {
				return nil, err
			}
			sawCommitter = true
		case "encoding":
			c.Encoding = h.value
		case "gpgsig":
			c.GPGSig = h.value
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: h.key, Value: h.value})
		}
	}
	if !sawTree || !sawAuthor || !sawCommitter {
		return nil, giterr.Newf("unmarshal commit", "", giterr.ErrCorruption, "missing required header")
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag:
//
//	object H
//	type T
//	tag NAME
//	tagger S   (optional)
//
//	message
func MarshalTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Target)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", EncodeSignature(*t.Tagger))
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses an annotated tag.
func UnmarshalTag(data []byte) (*Tag, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, giterr.Newf("unmarshal tag", "", giterr.ErrCorruption, "%v", err)
	}
	t := &Tag{Message: message}
	for _, h := range headers {
		switch h.key {
		case "object":
			if t.Target, err = ParseHash(h.value); err != nil {
				return nil, giterr.Newf("unmarshal tag", "", giterr.ErrCorruption, "bad object %q", h.value)
			}
		case "type":
			if t.TargetType, err = ParseObjectType(h.value); err != nil {
				return nil, giterr.Newf("unmarshal tag", "", giterr.ErrCorruption, "bad type %q", h.value)
			}
		case "tag":
			t.Name = h.value
		case "tagger":
			sig, err := ParseSignature(h.value)
			if err != nil {
				return nil, err
			}
			t.Tagger = &sig
		}
	}
	if t.Target == "" || t.TargetType == "" || t.Name == "" {
		return nil, giterr.Newf("unmarshal tag", "", giterr.ErrCorruption, "missing required header")
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Generic
// ---------------------------------------------------------------------------

// Marshal encodes any object into its canonical payload. Tree ids must be
// algo-sized.
func Marshal(algo HashAlgorithm, obj Object) ([]byte, error) {
	switch o := obj.(type) {
	case *Blob:
		return MarshalBlob(o), nil
	case *Tree:
		return MarshalTree(algo, o)
	case *Commit:
		return MarshalCommit(o), nil
	case *Tag:
		return MarshalTag(o), nil
	}
	return nil, giterr.Newf("marshal", "", giterr.ErrInvalidArgument, "unsupported object %T", obj)
}

// Unmarshal decodes a canonical payload of the given type.
func Unmarshal(algo HashAlgorithm, objType ObjectType, data []byte) (Object, error) {
	switch objType {
	case TypeBlob:
		return UnmarshalBlob(data)
	case TypeTree:
		return UnmarshalTree(algo, data)
	case TypeCommit:
		return UnmarshalCommit(data)
	case TypeTag:
		return UnmarshalTag(data)
	}
	return nil, giterr.Newf("unmarshal", string(objType), giterr.ErrInvalidArgument, "unknown object type")
}
