// Package merge implements three-way merges of file contents and of
// whole trees. Tree merges produce an index: stage 0 entries for
// resolved paths and stages 1-3 for conflicts.
package merge

import (
	"bytes"

	"github.com/odvcencio/gitcore/pkg/diff3"
	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

// FileInput is one side of a file merge. A zero Mode with no Content
// stands for an absent file.
type FileInput struct {
	Path    string
	Mode    object.FileMode
	Content []byte
}

func (in FileInput) absent() bool { return in.Mode == 0 && len(in.Content) == 0 && in.Path == "" }

// FileOptions controls a file merge.
type FileOptions struct {
	AncestorLabel string
	OurLabel      string
	TheirLabel    string
	Favor         diff3.Favor
	Style         diff3.Style
	MarkerSize    int
	// Binary decides whether content is binary. Defaults to object.IsBinary.
	Binary func([]byte) bool
}

// FileResult is the outcome of File.
type FileResult struct {
	// Automergeable is set when content, path and mode all merged
	// without conflict.
	Automergeable bool
	// Path is empty when the sides renamed the file differently, or
	// when no side carried a path.
	Path string
	// Mode is zero when the sides changed the mode differently.
	Mode      object.FileMode
	Content   []byte
	Conflicts int
}

// File merges the contents of three versions of a file. It needs no
// repository.
func File(ancestor, ours, theirs FileInput, opts FileOptions) (FileResult, error) {
	if opts.Favor < diff3.FavorNormal || opts.Favor > diff3.FavorUnion {
		return FileResult{}, giterr.Newf("merge file", ours.Path, giterr.ErrInvalidArgument, "unknown favor %d", opts.Favor)
	}
	isBinary := opts.Binary
	if isBinary == nil {
		isBinary = object.IsBinary
	}

	// Buffers merged without a repository often carry no mode.
	for _, in := range []*FileInput{&ours, &theirs} {
		if in.Mode == 0 {
			in.Mode = object.ModeBlob
		}
	}
	if ancestor.Mode == 0 && !ancestor.absent() {
		ancestor.Mode = object.ModeBlob
	}

	path, pathOK := bestPath(ancestor, ours, theirs)
	res := FileResult{Path: path, Mode: bestMode(ancestor, ours, theirs)}

	if isBinary(ancestor.Content) || isBinary(ours.Content) || isBinary(theirs.Content) {
		content, ok := mergeBinary(ancestor.Content, ours.Content, theirs.Content, opts.Favor)
		res.Content = content
		if !ok {
			res.Conflicts = 1
		}
	} else {
		r := diff3.MergeWithOptions(ancestor.Content, ours.Content, theirs.Content, diff3.Options{
			AncestorLabel: label(opts.AncestorLabel, ancestor.Path),
			OursLabel:     label(opts.OurLabel, ours.Path),
			TheirsLabel:   label(opts.TheirLabel, theirs.Path),
			MarkerSize:    opts.MarkerSize,
			Style:         opts.Style,
			Favor:         opts.Favor,
		})
		res.Content = r.Merged
		res.Conflicts = r.Conflicts
	}

	res.Automergeable = res.Conflicts == 0 && pathOK && res.Mode != 0
	return res, nil
}

func label(explicit, path string) string {
	if explicit != "" {
		return explicit
	}
	return path
}

// mergeBinary picks a whole side. Without a favor only a one-sided
// change merges; otherwise ours is kept and a conflict reported.
func mergeBinary(base, ours, theirs []byte, favor diff3.Favor) ([]byte, bool) {
	switch {
	case bytes.Equal(ours, theirs):
		return clone(ours), true
	case bytes.Equal(base, ours):
		return clone(theirs), true
	case bytes.Equal(base, theirs):
		return clone(ours), true
	case favor == diff3.FavorOurs:
		return clone(ours), true
	case favor == diff3.FavorTheirs:
		return clone(theirs), true
	default:
		return clone(ours), false
	}
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

func bestPath(ancestor, ours, theirs FileInput) (string, bool) {
	switch {
	case ours.Path == theirs.Path:
		return ours.Path, true
	case ancestor.absent() || ancestor.Path == "":
		return "", false
	case ancestor.Path == ours.Path:
		return theirs.Path, true
	case ancestor.Path == theirs.Path:
		return ours.Path, true
	default:
		return "", false
	}
}

// bestMode takes the side that changed the mode. Without an ancestor
// an executable bit on either side wins.
func bestMode(ancestor, ours, theirs FileInput) object.FileMode {
	if ancestor.absent() || ancestor.Mode == 0 {
		if ours.Mode == object.ModeExecutable || theirs.Mode == object.ModeExecutable {
			return object.ModeExecutable
		}
		if ours.Mode == theirs.Mode && ours.Mode != 0 {
			return ours.Mode
		}
		return object.ModeBlob
	}
	switch {
	case ancestor.Mode == ours.Mode:
		return theirs.Mode
	case ancestor.Mode == theirs.Mode:
		return ours.Mode
	case ours.Mode == theirs.Mode:
		return ours.Mode
	default:
		return 0
	}
}
