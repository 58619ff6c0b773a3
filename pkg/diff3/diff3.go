package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // Hunk was merged cleanly.
	HunkConflict                 // Hunk has a conflict that requires manual resolution.
)

// Hunk represents a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged       []byte // Full merged content (with conflict markers if conflicts exist).
	HasConflicts bool   // True if any hunk is a conflict.
	Conflicts    int    // Number of conflict regions written with markers.
	Hunks        []Hunk // Individual hunks in document order.
}

// Favor selects how overlapping changes are resolved.
type Favor int

const (
	FavorNormal Favor = iota // Emit conflict markers.
	FavorOurs                // Take our side of each conflict.
	FavorTheirs              // Take their side of each conflict.
	FavorUnion               // Take both sides, ours first.
)

// Style selects the conflict marker layout.
type Style int

const (
	StyleMerge Style = iota // ours and theirs sections only.
	StyleDiff3              // adds a ||||||| section with the ancestor text.
)

// DefaultMarkerSize is the width of conflict markers when Options.MarkerSize is zero.
const DefaultMarkerSize = 7

// Options tunes a three-way merge.
type Options struct {
	AncestorLabel string
	OursLabel     string
	TheirsLabel   string
	MarkerSize    int
	Style         Style
	Favor         Favor
}

// DiffLine is a single line in the output of LineDiff.
type DiffLine struct {
	Type    DiffType
	Content string
}

// LineDiff computes a line-level diff between byte slices a and b.
// Content carries the line without its terminating newline.
func LineDiff(a, b []byte) []DiffLine {
	ops := MyersDiff(splitLines(string(a)), splitLines(string(b)))

	result := make([]DiffLine, len(ops))
	for i, op := range ops {
		result[i] = DiffLine{Type: op.Type, Content: strings.TrimSuffix(op.Line, "\n")}
	}
	return result
}

// Merge performs a three-way merge of base, ours, and theirs with
// conflict markers labelled "ours" and "theirs".
func Merge(base, ours, theirs []byte) Result {
	return MergeWithOptions(base, ours, theirs, Options{OursLabel: "ours", TheirsLabel: "theirs"})
}

// MergeWithOptions performs a three-way merge of base, ours, and theirs.
//
// Algorithm:
//  1. Split base, ours, theirs into lines.
//  2. Compute diff(base, ours) and diff(base, theirs).
//  3. Convert each diff into a sequence of chunks: contiguous runs of
//     unchanged or changed regions relative to the base.
//  4. Walk both chunk sequences in base order to classify each region.
//  5. Render regions; overlapping different changes are resolved by
//     opts.Favor or written with conflict markers.
func MergeWithOptions(base, ours, theirs []byte, opts Options) Result {
	baseLines := splitLines(string(base))
	oursLines := splitLines(string(ours))
	theirsLines := splitLines(string(theirs))

	oursChunks := buildChunks(baseLines, oursLines)
	theirsChunks := buildChunks(baseLines, theirsLines)

	return render(mergeChunks(baseLines, oursChunks, theirsChunks), opts)
}

// splitLines splits s into lines, keeping each line's terminating
// newline. A final line without a newline is kept as is, so content
// that lacks a trailing newline survives the merge unchanged.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chunk represents a contiguous region relative to the base.
type chunk struct {
	baseStart, baseEnd int      // range [baseStart, baseEnd) in base
	lines              []string // replacement lines for this region
	changed            bool     // true if this region differs from base
}

// buildChunks converts a two-way diff (base → side) into a list of chunks.
// Each chunk covers a contiguous range of base lines and carries the
// corresponding replacement lines from the side.
func buildChunks(base, side []string) []chunk {
	ops := MyersDiff(base, side)

	var chunks []chunk
	baseIdx := 0

	i := 0
	for i < len(ops) {
		op := ops[i]

		if op.Type == Equal {
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{op.Line},
			})
			baseIdx++
			i++
			continue
		}

		// Accumulate a contiguous changed region (deletes and/or inserts).
		chunkStart := baseIdx
		var sideLines []string

		for i < len(ops) && ops[i].Type != Equal {
			if ops[i].Type == Delete {
				baseIdx++
			} else {
				sideLines = append(sideLines, ops[i].Line)
			}
			i++
		}

		chunks = append(chunks, chunk{
			baseStart: chunkStart,
			baseEnd:   baseIdx,
			lines:     sideLines,
			changed:   true,
		})
	}

	return chunks
}

// region is a classified span of the merge.
type region struct {
	conflict           bool
	base, ours, theirs []string
	merged             []string // set for clean regions
}

// mergeChunks walks two chunk sequences (ours and theirs) in parallel,
// aligned by base-line positions, and classifies each base region.
func mergeChunks(baseLines []string, oursChunks, theirsChunks []chunk) []region {
	var out []region
	oi, ti := 0, 0

	for oi < len(oursChunks) || ti < len(theirsChunks) {
		if oi == len(oursChunks) {
			tc := theirsChunks[ti]
			out = append(out, cleanRegion(baseLines[tc.baseStart:tc.baseEnd], nil, tc.lines, tc.lines))
			ti++
			continue
		}
		if ti == len(theirsChunks) {
			oc := oursChunks[oi]
			out = append(out, cleanRegion(baseLines[oc.baseStart:oc.baseEnd], oc.lines, nil, oc.lines))
			oi++
			continue
		}

		oc, tc := oursChunks[oi], theirsChunks[ti]
		if oc.baseStart == tc.baseStart && oc.baseEnd == tc.baseEnd {
			out = append(out, classify(baseLines[oc.baseStart:oc.baseEnd], oc.lines, tc.lines, oc.changed, tc.changed))
			oi++
			ti++
			continue
		}

		// Chunks are misaligned: one side has a change spanning several
		// chunks of the other. Grow the region until no chunk on either
		// side straddles its end.
		regionStart := min(oc.baseStart, tc.baseStart)
		regionEnd := max(oc.baseEnd, tc.baseEnd)
		var oursRegion, theirsRegion []chunk
		for {
			grew := false
			for oi < len(oursChunks) && oursChunks[oi].baseStart < regionEnd {
				oursRegion = append(oursRegion, oursChunks[oi])
				regionEnd = max(regionEnd, oursChunks[oi].baseEnd)
				oi++
				grew = true
			}
			for ti < len(theirsChunks) && theirsChunks[ti].baseStart < regionEnd {
				theirsRegion = append(theirsRegion, theirsChunks[ti])
				regionEnd = max(regionEnd, theirsChunks[ti].baseEnd)
				ti++
				grew = true
			}
			if !grew {
				break
			}
		}

		out = append(out, classify(baseLines[regionStart:regionEnd],
			assembleRegion(oursRegion), assembleRegion(theirsRegion),
			anyChanged(oursRegion), anyChanged(theirsRegion)))
	}

	return coalesce(out)
}

func classify(base, ours, theirs []string, oursChanged, theirsChanged bool) region {
	switch {
	case !oursChanged && !theirsChanged:
		return cleanRegion(base, nil, nil, base)
	case oursChanged && !theirsChanged:
		return cleanRegion(base, ours, nil, ours)
	case !oursChanged && theirsChanged:
		return cleanRegion(base, nil, theirs, theirs)
	case linesEqual(ours, theirs):
		return cleanRegion(base, ours, theirs, ours)
	default:
		return region{conflict: true, base: base, ours: ours, theirs: theirs}
	}
}

func cleanRegion(base, ours, theirs, merged []string) region {
	return region{base: base, ours: ours, theirs: theirs, merged: merged}
}

// coalesce joins adjacent conflict regions so a run of overlapping
// changes is reported as one conflict.
func coalesce(regions []region) []region {
	out := regions[:0]
	for _, r := range regions {
		if n := len(out); n > 0 && r.conflict && out[n-1].conflict {
			prev := &out[n-1]
			prev.base = append(append([]string(nil), prev.base...), r.base...)
			prev.ours = append(append([]string(nil), prev.ours...), r.ours...)
			prev.theirs = append(append([]string(nil), prev.theirs...), r.theirs...)
			continue
		}
		out = append(out, r)
	}
	return out
}

func render(regions []region, opts Options) Result {
	size := opts.MarkerSize
	if size <= 0 {
		size = DefaultMarkerSize
	}

	var merged bytes.Buffer
	res := Result{Hunks: make([]Hunk, 0, len(regions))}
	for _, r := range regions {
		h := Hunk{
			Base:   joinLines(r.base),
			Ours:   joinLines(r.ours),
			Theirs: joinLines(r.theirs),
		}
		if !r.conflict {
			h.Merged = joinLines(r.merged)
			writeLines(&merged, r.merged)
			res.Hunks = append(res.Hunks, h)
			continue
		}

		switch opts.Favor {
		case FavorOurs:
			h.Merged = joinLines(r.ours)
		case FavorTheirs:
			h.Merged = joinLines(r.theirs)
		case FavorUnion:
			h.Merged = joinLines(terminate(r.ours, len(r.theirs) > 0), r.theirs)
		default:
			h.Type = HunkConflict
			res.HasConflicts = true
			res.Conflicts++
			writeConflict(&merged, r, opts, size)
			res.Hunks = append(res.Hunks, h)
			continue
		}
		merged.Write(h.Merged)
		res.Hunks = append(res.Hunks, h)
	}
	res.Merged = merged.Bytes()
	return res
}

func writeConflict(buf *bytes.Buffer, r region, opts Options, size int) {
	writeMarker(buf, '<', size, opts.OursLabel)
	writeLines(buf, terminate(r.ours, true))
	if opts.Style == StyleDiff3 {
		writeMarker(buf, '|', size, opts.AncestorLabel)
		writeLines(buf, terminate(r.base, true))
	}
	writeMarker(buf, '=', size, "")
	writeLines(buf, terminate(r.theirs, true))
	writeMarker(buf, '>', size, opts.TheirsLabel)
}

func writeMarker(buf *bytes.Buffer, c byte, size int, label string) {
	for range size {
		buf.WriteByte(c)
	}
	if label != "" {
		buf.WriteByte(' ')
		buf.WriteString(label)
	}
	buf.WriteByte('\n')
}

// terminate returns lines with a newline added to the last line when
// it lacks one and more text follows.
func terminate(lines []string, more bool) []string {
	if !more || len(lines) == 0 || strings.HasSuffix(lines[len(lines)-1], "\n") {
		return lines
	}
	out := append([]string(nil), lines...)
	out[len(out)-1] += "\n"
	return out
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
	}
}

func joinLines(parts ...[]string) []byte {
	var buf bytes.Buffer
	for _, lines := range parts {
		writeLines(&buf, lines)
	}
	if buf.Len() == 0 {
		return nil
	}
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assembleRegion(chunks []chunk) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, c.lines...)
	}
	return lines
}

func anyChanged(chunks []chunk) bool {
	for _, c := range chunks {
		if c.changed {
			return true
		}
	}
	return false
}
