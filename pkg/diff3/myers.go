package diff3

// DiffType is the kind of one edit-script step.
type DiffType int

const (
	Equal  DiffType = iota // line kept
	Insert                 // line only in b
	Delete                 // line only in a
)

// DiffOp is one step of the script MyersDiff returns.
type DiffOp struct {
	Type DiffType
	Line string
}

// MyersDiff returns a shortest edit script turning a into b, comparing
// whole lines. Common leading and trailing lines are matched up front;
// the greedy O((N+M)D) search only sees what lies between them.
func MyersDiff(a, b []string) []DiffOp {
	head := 0
	for head < len(a) && head < len(b) && a[head] == b[head] {
		head++
	}
	tail := 0
	for tail < len(a)-head && tail < len(b)-head && a[len(a)-1-tail] == b[len(b)-1-tail] {
		tail++
	}
	if len(a)+len(b) == 0 {
		return nil
	}

	ops := make([]DiffOp, 0, len(a)+len(b)-head-tail)
	for _, l := range a[:head] {
		ops = append(ops, DiffOp{Type: Equal, Line: l})
	}
	ops = appendEdits(ops, a[head:len(a)-tail], b[head:len(b)-tail])
	for _, l := range a[len(a)-tail:] {
		ops = append(ops, DiffOp{Type: Equal, Line: l})
	}
	return ops
}

// appendEdits appends the edit script for a -> b to ops.
func appendEdits(ops []DiffOp, a, b []string) []DiffOp {
	n, m := len(a), len(b)
	if n == 0 {
		for _, l := range b {
			ops = append(ops, DiffOp{Type: Insert, Line: l})
		}
		return ops
	}
	if m == 0 {
		for _, l := range a {
			ops = append(ops, DiffOp{Type: Delete, Line: l})
		}
		return ops
	}

	ia, ib := internLines(a, b)
	off := n + m
	// frontier[off+k] is the furthest x reached on diagonal k = x - y.
	frontier := make([]int, 2*off+2)
	// rounds[d] keeps diagonals -d..d of the frontier after round d.
	var rounds [][]int

	for d := 0; d <= off; d++ {
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && frontier[off+k-1] < frontier[off+k+1]) {
				x = frontier[off+k+1]
			} else {
				x = frontier[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && ia[x] == ib[y] {
				x++
				y++
			}
			frontier[off+k] = x
			if x >= n && y >= m {
				rounds = append(rounds, append([]int(nil), frontier[off-d:off+d+1]...))
				return appendReversed(ops, traceBack(rounds, a, b))
			}
		}
		rounds = append(rounds, append([]int(nil), frontier[off-d:off+d+1]...))
	}
	return ops
}

// traceBack walks the saved rounds from (len(a), len(b)) to the origin
// and returns the script last step first.
func traceBack(rounds [][]int, a, b []string) []DiffOp {
	x, y := len(a), len(b)
	out := make([]DiffOp, 0, x+y)
	for d := len(rounds) - 1; d > 0; d-- {
		prev := rounds[d-1]
		reach := func(k int) int { return prev[k+d-1] }

		k := x - y
		from := k - 1
		if k == -d || (k != d && reach(k-1) < reach(k+1)) {
			from = k + 1
		}
		px := reach(from)
		py := px - from
		for x > px && y > py {
			x--
			y--
			out = append(out, DiffOp{Type: Equal, Line: a[x]})
		}
		if from == k+1 {
			y--
			out = append(out, DiffOp{Type: Insert, Line: b[y]})
		} else {
			x--
			out = append(out, DiffOp{Type: Delete, Line: a[x]})
		}
	}
	for x > 0 {
		x--
		out = append(out, DiffOp{Type: Equal, Line: a[x]})
	}
	return out
}

func appendReversed(ops, rev []DiffOp) []DiffOp {
	for i := len(rev) - 1; i >= 0; i-- {
		ops = append(ops, rev[i])
	}
	return ops
}

// internLines maps each distinct line to a small integer so the search
// compares ints rather than strings.
func internLines(a, b []string) ([]int, []int) {
	ids := make(map[string]int, len(a))
	conv := func(lines []string) []int {
		out := make([]int, len(lines))
		for i, l := range lines {
			id, ok := ids[l]
			if !ok {
				id = len(ids)
				ids[l] = id
			}
			out[i] = id
		}
		return out
	}
	return conv(a), conv(b)
}
