package object

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// NewSignature returns a signature stamped with the current time in the
// local zone.
func NewSignature(name, email string) Signature {
	return Signature{Name: name, Email: email, When: time.Now().Truncate(time.Second)}
}

// EncodeSignature renders s as "Name <email> <unix> <+hhmm>".
func EncodeSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), FormatTimezoneOffset(s.When))
}

// ParseSignature parses the identity line used in commit and tag headers
// and in reflog entries.
func ParseSignature(line string) (Signature, error) {
	lt := strings.IndexByte(line, '<')
	gt := strings.LastIndexByte(line, '>')
	if lt < 0 || gt < lt {
		return Signature{}, giterr.Newf("parse signature", line, giterr.ErrCorruption, "missing email")
	}
	sig := Signature{
		Name:  strings.TrimSpace(line[:lt]),
		Email: line[lt+1 : gt],
	}

	fields := strings.Fields(line[gt+1:])
	if len(fields) == 0 {
		sig.When = time.Unix(0, 0).UTC()
		return sig, nil
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, giterr.Newf("parse signature", line, giterr.ErrCorruption, "bad timestamp %q", fields[0])
	}
	loc := time.UTC
	if len(fields) > 1 {
		loc, err = parseTimezoneOffset(fields[1])
		if err != nil {
			return Signature{}, giterr.Newf("parse signature", line, giterr.ErrCorruption, "bad timezone %q", fields[1])
		}
	}
	sig.When = time.Unix(ts, 0).In(loc)
	return sig, nil
}

// FormatTimezoneOffset renders the zone offset of t as +hhmm / -hhmm.
func FormatTimezoneOffset(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	return fmt.Sprintf("%s%02d%02d", sign, hours, minutes)
}

func parseTimezoneOffset(s string) (*time.Location, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("invalid offset %q", s)
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, err
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return nil, err
	}
	offset := hh*3600 + mm*60
	if s[0] == '-' {
		offset = -offset
	}
	if offset == 0 {
		return time.UTC, nil
	}
	return time.FixedZone("", offset), nil
}

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit: its encoding without the gpgsig header.
func CommitSigningPayload(c *Commit) []byte {
	if c == nil {
		return nil
	}
	unsigned := *c
	unsigned.GPGSig = ""
	return MarshalCommit(&unsigned)
}
