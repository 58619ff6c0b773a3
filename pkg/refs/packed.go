package refs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// packed-refs headers. Peeling is only claimed when every entry went
// through the configured Peeler.
const (
	packedHeaderSorted = "# pack-refs with: sorted \n"
	packedHeaderPeeled = "# pack-refs with: peeled fully-peeled sorted \n"
)

type packedRef struct {
	name   string
	hash   object.Hash
	peeled object.Hash
}

func (db *DB) packedPath() string {
	return filepath.Join(db.gitDir, "packed-refs")
}

// readPacked parses packed-refs. A missing file yields no entries.
func (db *DB) readPacked() ([]packedRef, error) {
	data, err := os.ReadFile(db.packedPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}

	var out []packedRef
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "" || line[0] == '#':
			continue
		case line[0] == '^':
			if len(out) == 0 {
				return nil, giterr.Newf("read packed-refs", "", giterr.ErrCorruption, "line %d: peel without ref", lineNo)
			}
			peeled, err := object.ParseHash(line[1:])
			if err != nil {
				return nil, giterr.Newf("read packed-refs", "", giterr.ErrCorruption, "line %d: bad peeled id", lineNo)
			}
			out[len(out)-1].peeled = peeled
		default:
			hex, name, ok := strings.Cut(line, " ")
			if !ok {
				return nil, giterr.Newf("read packed-refs", "", giterr.ErrCorruption, "line %d: malformed", lineNo)
			}
			h, err := object.ParseHash(hex)
			if err != nil || !ValidName(name) {
				return nil, giterr.Newf("read packed-refs", "", giterr.ErrCorruption, "line %d: malformed", lineNo)
			}
			out = append(out, packedRef{name: name, hash: h})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return out, nil
}

func (db *DB) lookupPacked(name string) (*packedRef, error) {
	packed, err := db.readPacked()
	if err != nil {
		return nil, err
	}
	for i := range packed {
		if packed[i].name == name {
			return &packed[i], nil
		}
	}
	return nil, nil
}

// lockPacked takes packed-refs.lock. Every read-modify-write of
// packed-refs reads the file only after this succeeds.
func (db *DB) lockPacked(op string) (*lockfile.File, error) {
	l, err := lockfile.Acquire(db.packedPath(), lockfile.DefaultWait)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// commitPacked writes entries through the held lock and renames it over
// packed-refs. An empty set removes the file. The lock is released either
// way.
func (db *DB) commitPacked(l *lockfile.File, entries []packedRef) error {
	if len(entries) == 0 {
		defer l.Rollback()
		if err := os.Remove(db.packedPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("write packed-refs: %w", err)
		}
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var buf bytes.Buffer
	buf.WriteString(db.peelPacked(entries))
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s\n", e.hash, e.name)
		if e.peeled != "" {
			fmt.Fprintf(&buf, "^%s\n", e.peeled)
		}
	}
	if _, err := l.Write(buf.Bytes()); err != nil {
		l.Rollback()
		return fmt.Errorf("write packed-refs: %w", err)
	}
	if err := l.Commit(); err != nil {
		return fmt.Errorf("write packed-refs: %w", err)
	}
	return nil
}

// peelPacked fills in the peeled id of every entry that lacks one and
// returns the header those entries earn. Without a Peeler, or when some
// entry cannot be peeled, only sort order is claimed.
func (db *DB) peelPacked(entries []packedRef) string {
	if db.peeler == nil {
		return packedHeaderSorted
	}
	for i := range entries {
		if entries[i].peeled != "" {
			continue
		}
		peeled, err := db.peeler(entries[i].hash)
		if err != nil {
			db.logger.Debug("packed ref not peeled", "ref", entries[i].name, "err", err)
			return packedHeaderSorted
		}
		if peeled != entries[i].hash {
			entries[i].peeled = peeled
		}
	}
	return packedHeaderPeeled
}

// removePacked drops name from packed-refs if present.
func (db *DB) removePacked(name string) error {
	l, err := db.lockPacked("remove packed ref")
	if err != nil {
		return err
	}
	packed, err := db.readPacked()
	if err != nil {
		l.Rollback()
		return err
	}
	kept := packed[:0]
	found := false
	for _, e := range packed {
		if e.name == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		l.Rollback()
		return nil
	}
	return db.commitPacked(l, kept)
}

// Pack moves every loose direct reference under refs/ into packed-refs and
// removes the loose files. Lookup results are unchanged. When a Peeler is
// configured, every entry records its peeled target.
func (db *DB) Pack() error {
	l, err := db.lockPacked("pack refs")
	if err != nil {
		return err
	}
	merged, prune, err := db.mergeLoose()
	if err != nil {
		l.Rollback()
		return err
	}
	entries := make([]packedRef, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	if err := db.commitPacked(l, entries); err != nil {
		return err
	}

	for _, name := range prune {
		if err := db.removeLooseIfUnchanged(name, merged[name].hash); err != nil {
			return err
		}
	}
	db.logger.Debug("packed refs", "count", len(entries), "pruned", len(prune))
	return nil
}

// mergeLoose overlays the loose direct references on the packed ones and
// names the loose files that may be pruned afterwards.
func (db *DB) mergeLoose() (map[string]packedRef, []string, error) {
	packed, err := db.readPacked()
	if err != nil {
		return nil, nil, err
	}
	merged := make(map[string]packedRef, len(packed))
	for _, e := range packed {
		merged[e.name] = e
	}

	loose, err := db.listLoose()
	if err != nil {
		return nil, nil, err
	}
	var prune []string
	for _, ref := range loose {
		if ref.IsSymbolic() {
			continue
		}
		merged[ref.Name] = packedRef{name: ref.Name, hash: ref.Target}
		prune = append(prune, ref.Name)
	}
	return merged, prune, nil
}
