package refs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// ErrReflogAppendFailed marks a reference update that was committed but
// whose reflog entry could not be written.
var ErrReflogAppendFailed = errors.New("ref updated but reflog append failed")

// ReflogError indicates the ref file update succeeded, but appending the
// corresponding reflog entry failed.
type ReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *ReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v", e.Ref, ErrReflogAppendFailed, e.OldHash, e.NewHash, e.Err)
}

func (e *ReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ReflogError) Is(target error) bool {
	return target == ErrReflogAppendFailed
}

// ReflogEntry is one recorded change of a reference.
type ReflogEntry struct {
	Old       object.Hash
	New       object.Hash
	Committer object.Signature
	Message   string
}

func (e ReflogEntry) encode() string {
	msg := strings.TrimRight(strings.ReplaceAll(e.Message, "\n", " "), " ")
	return fmt.Sprintf("%s %s %s\t%s\n", e.Old, e.New, object.EncodeSignature(e.Committer), msg)
}

func (db *DB) logPath(name string) string {
	return filepath.Join(db.gitDir, "logs", filepath.FromSlash(name))
}

// HasLog reports whether name has a reflog file.
func (db *DB) HasLog(name string) bool {
	info, err := os.Stat(db.logPath(name))
	return err == nil && !info.IsDir()
}

// EnsureLog creates an empty reflog for name so later updates are logged
// regardless of core.logAllRefUpdates.
func (db *DB) EnsureLog(name string) error {
	if err := checkName("ensure reflog", name); err != nil {
		return err
	}
	path := db.logPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure reflog %q: %w", name, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ensure reflog %q: %w", name, err)
	}
	return f.Close()
}

// logUpdate appends to name's reflog when policy says it is logged, and to
// HEAD's reflog when HEAD symbolically targets name.
func (db *DB) logUpdate(name string, oldHash, newHash object.Hash, msg string) error {
	if (db.logAll && shouldAutoLog(name)) || db.HasLog(name) {
		if err := db.AppendReflog(name, oldHash, newHash, msg); err != nil {
			return err
		}
	}
	if name == HEAD {
		return nil
	}
	head, err := db.readLoose(HEAD)
	if err != nil || head == nil || head.Symbolic != name {
		return nil
	}
	if db.logAll || db.HasLog(HEAD) {
		return db.AppendReflog(HEAD, oldHash, newHash, msg)
	}
	return nil
}

// AppendReflog unconditionally appends an entry to name's reflog. Empty
// ids are recorded as the zero id.
func (db *DB) AppendReflog(name string, oldHash, newHash object.Hash, msg string) error {
	if err := checkName("append reflog", name); err != nil {
		return err
	}
	if oldHash == "" {
		oldHash = db.algo.ZeroHash()
	}
	if newHash == "" {
		newHash = db.algo.ZeroHash()
	}
	entry := ReflogEntry{Old: oldHash, New: newHash, Committer: db.identity(), Message: msg}

	path := db.logPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry.encode()); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("reflog sync: %w", err)
	}
	return nil
}

// Reflog returns the entries of name's reflog, newest first. A reference
// without a log has no entries.
func (db *DB) Reflog(name string) ([]ReflogEntry, error) {
	if err := checkName("read reflog", name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(db.logPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	entries, err := parseReflog(data)
	if err != nil {
		return nil, giterr.Wrap("read reflog", name, err)
	}
	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func parseReflog(data []byte) ([]ReflogEntry, error) {
	var entries []ReflogEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		head, msg, _ := strings.Cut(line, "\t")
		oldHex, rest, ok1 := strings.Cut(head, " ")
		newHex, ident, ok2 := strings.Cut(rest, " ")
		if !ok1 || !ok2 {
			return nil, giterr.Newf("parse reflog", "", giterr.ErrCorruption, "line %d: malformed", lineNo)
		}
		oldHash, err1 := object.ParseHash(oldHex)
		newHash, err2 := object.ParseHash(newHex)
		if err1 != nil || err2 != nil {
			return nil, giterr.Newf("parse reflog", "", giterr.ErrCorruption, "line %d: bad id", lineNo)
		}
		sig, err := object.ParseSignature(ident)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ReflogEntry{Old: oldHash, New: newHash, Committer: sig, Message: msg})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// DropReflogEntry removes entry idx (0 = newest). With rewritePrevious
// the next newer entry inherits the dropped entry's old id so the chain
// stays continuous.
func (db *DB) DropReflogEntry(name string, idx int, rewritePrevious bool) error {
	entries, err := db.Reflog(name)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(entries) {
		return giterr.Newf("drop reflog entry", name, giterr.ErrNotFound, "no entry %d", idx)
	}
	if rewritePrevious && idx > 0 {
		if idx == len(entries)-1 {
			entries[idx-1].Old = db.algo.ZeroHash()
		} else {
			entries[idx-1].Old = entries[idx].Old
		}
	}
	entries = append(entries[:idx], entries[idx+1:]...)

	var buf bytes.Buffer
	for i := len(entries) - 1; i >= 0; i-- {
		buf.WriteString(entries[i].encode())
	}
	return db.writeLogFile(name, buf.Bytes())
}

func (db *DB) writeLogFile(name string, data []byte) error {
	if err := lockfile.WriteFile(db.logPath(name), data, lockfile.DefaultWait); err != nil {
		return fmt.Errorf("write reflog %q: %w", name, err)
	}
	return nil
}

func (db *DB) deleteLog(name string) error {
	path := db.logPath(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete reflog %q: %w", name, err)
	}
	db.pruneEmptyDirs(filepath.Dir(path), filepath.Join(db.gitDir, "logs", "refs"))
	return nil
}
