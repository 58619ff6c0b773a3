package object

// BinaryDetector decides whether blob content should be treated as binary
// by merge and diff consumers. The heuristic only inspects the first
// ScanLimit bytes: a NUL byte means binary, and so does more than one
// non-printable byte per PrintableRatio printable ones.
type BinaryDetector struct {
	ScanLimit      int
	PrintableRatio int
}

// DefaultBinaryDetector matches the thresholds git tooling commonly uses.
var DefaultBinaryDetector = BinaryDetector{ScanLimit: 8000, PrintableRatio: 128}

// IsBinary applies DefaultBinaryDetector.
func IsBinary(data []byte) bool {
	return DefaultBinaryDetector.IsBinary(data)
}

// IsBinary reports whether data looks binary.
func (d BinaryDetector) IsBinary(data []byte) bool {
	limit := d.ScanLimit
	if limit <= 0 || limit > len(data) {
		limit = len(data)
	}
	ratio := d.PrintableRatio
	if ratio <= 0 {
		ratio = DefaultBinaryDetector.PrintableRatio
	}

	var printable, nonprintable int
	for _, c := range data[:limit] {
		switch {
		case c == 0:
			return true
		case c == 0x7f:
			nonprintable++
		case c >= 0x20:
			printable++
		case c == '\b', c == '\t', c == '\n', c == '\f', c == '\r', c == 0x1b:
			printable++
		default:
			nonprintable++
		}
	}
	return nonprintable*ratio > printable
}
