package merge

import (
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// Analysis is the set of ways a merge of a commit into HEAD can proceed.
type Analysis int

const (
	AnalysisNone Analysis = 0
	// AnalysisNormal means a three-way merge is required.
	AnalysisNormal Analysis = 1 << iota
	// AnalysisUpToDate means the commit is already reachable from HEAD.
	AnalysisUpToDate
	// AnalysisFastForward means HEAD is an ancestor of the commit.
	AnalysisFastForward
	// AnalysisUnborn means HEAD points at a branch with no commits.
	AnalysisUnborn
)

// Has reports whether all bits of f are set.
func (a Analysis) Has(f Analysis) bool { return f != 0 && a&f == f }

func (a Analysis) String() string {
	if a == AnalysisNone {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  Analysis
		name string
	}{
		{AnalysisNormal, "normal"},
		{AnalysisUpToDate, "up-to-date"},
		{AnalysisFastForward, "fast-forward"},
		{AnalysisUnborn, "unborn"},
	} {
		if a.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Preference is the configured fast-forward policy (merge.ff).
type Preference int

const (
	PreferenceNone            Preference = iota // merge.ff unset or true
	PreferenceNoFastForward                     // merge.ff=false
	PreferenceFastForwardOnly                   // merge.ff=only
)

// ParsePreference maps a merge.ff value to a Preference.
func ParsePreference(v string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "true", "yes", "on", "1":
		return PreferenceNone, nil
	case "false", "no", "off", "0":
		return PreferenceNoFastForward, nil
	case "only":
		return PreferenceFastForwardOnly, nil
	default:
		return PreferenceNone, giterr.Newf("parse merge.ff", v, giterr.ErrInvalidArgument, "unknown value %q", v)
	}
}

func (p Preference) String() string {
	switch p {
	case PreferenceNoFastForward:
		return "no-fastforward"
	case PreferenceFastForwardOnly:
		return "fastforward-only"
	default:
		return "none"
	}
}
