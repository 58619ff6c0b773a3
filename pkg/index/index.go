// Package index implements git's staging area: a sorted list of path
// entries, each carrying an object id, a mode, a merge stage and cached
// stat data, persisted in the binary "DIRC" format.
package index

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// Stage is the merge stage of an entry. Stage 0 is a resolved path;
// stages 1-3 hold the ancestor, ours and theirs sides of a conflict.
type Stage uint8

const (
	StageNormal   Stage = 0
	StageAncestor Stage = 1
	StageOurs     Stage = 2
	StageTheirs   Stage = 3
)

// Entry is one staged path.
type Entry struct {
	Path  string
	Mode  object.FileMode
	Hash  object.Hash
	Stage Stage

	// Cached stat data. Only Size and MTime take part in change
	// detection; the rest round-trips unchanged.
	Size  uint32
	CTime time.Time
	MTime time.Time
	Dev   uint32
	Ino   uint32
	UID   uint32
	GID   uint32

	AssumeValid  bool
	IntentToAdd  bool
	SkipWorktree bool
}

func (e Entry) extended() bool { return e.IntentToAdd || e.SkipWorktree }

// entryLess orders by path bytes, then stage.
func entryLess(a, b *Entry) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.Stage < b.Stage
}

// Options configures an index.
type Options struct {
	Algorithm object.HashAlgorithm
	Logger    *slog.Logger
}

// Index is an in-memory staging area, optionally backed by a file. It is
// not safe for concurrent use.
type Index struct {
	path    string
	algo    object.HashAlgorithm
	logger  *slog.Logger
	entries []Entry

	// Fingerprint of the file as last read or written, for soft reads.
	stampSize  int64
	stampMTime time.Time
	checksum   []byte
}

// New returns an empty in-memory index. It cannot be read or written.
func New(algo object.HashAlgorithm) *Index {
	return &Index{algo: algoOrDefault(algo), logger: slog.New(slog.DiscardHandler)}
}

// Open returns an index backed by path, loading it if the file exists.
func Open(path string, opts Options) (*Index, error) {
	idx := &Index{path: path, algo: algoOrDefault(opts.Algorithm), logger: opts.Logger}
	if idx.logger == nil {
		idx.logger = slog.New(slog.DiscardHandler)
	}
	if err := idx.Read(true); err != nil {
		return nil, err
	}
	return idx, nil
}

func algoOrDefault(a object.HashAlgorithm) object.HashAlgorithm {
	if a == "" {
		return object.SHA1
	}
	return a
}

// Path returns the backing file, or "" for an in-memory index.
func (idx *Index) Path() string { return idx.path }

// Algorithm returns the hash algorithm entries and the checksum use.
func (idx *Index) Algorithm() object.HashAlgorithm { return idx.algo }

// Read reloads the index from disk, discarding in-memory changes. A soft
// read (force=false) is a no-op when the file's size, mtime and checksum
// match what was last read or written. A missing file yields an empty
// index.
func (idx *Index) Read(force bool) error {
	if idx.path == "" {
		return giterr.Newf("read index", "", giterr.ErrInvalidArgument, "in-memory index has no file")
	}
	info, err := os.Stat(idx.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			idx.entries = nil
			idx.stampSize, idx.stampMTime, idx.checksum = 0, time.Time{}, nil
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	if !force && idx.checksum != nil && info.Size() == idx.stampSize && info.ModTime().Equal(idx.stampMTime) {
		if sum, err := idx.readTrailer(info.Size()); err == nil && bytes.Equal(sum, idx.checksum) {
			return nil
		}
	}

	data, err := os.ReadFile(idx.path)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	entries, sum, err := decode(idx.algo, data)
	if err != nil {
		return giterr.Wrap("read index", idx.path, err)
	}
	idx.entries = entries
	idx.stampSize, idx.stampMTime, idx.checksum = info.Size(), info.ModTime(), sum
	idx.logger.Debug("read index", "path", idx.path, "entries", len(entries))
	return nil
}

func (idx *Index) readTrailer(size int64) ([]byte, error) {
	n := int64(idx.algo.Size())
	if size < n {
		return nil, io.ErrUnexpectedEOF
	}
	f, err := os.Open(idx.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write persists the index through an exclusive index.lock. A held lock
// fails immediately with giterr.ErrLocked.
func (idx *Index) Write() error {
	if idx.path == "" {
		return giterr.Newf("write index", "", giterr.ErrInvalidArgument, "in-memory index has no file")
	}
	data, sum := encode(idx.algo, idx.entries)
	lock, err := lockfile.Acquire(idx.path, 0)
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if _, err := lock.Write(data); err != nil {
		lock.Rollback()
		return fmt.Errorf("write index: %w", err)
	}
	if err := lock.Commit(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if info, err := os.Stat(idx.path); err == nil {
		idx.stampSize, idx.stampMTime, idx.checksum = info.Size(), info.ModTime(), sum
	}
	idx.logger.Debug("wrote index", "path", idx.path, "entries", len(idx.entries))
	return nil
}

// ValidPath reports whether p may be stored in the index: a relative,
// slash-separated path whose every component is a valid tree entry name.
func ValidPath(p string) bool {
	if p == "" {
		return false
	}
	for _, comp := range strings.Split(p, "/") {
		if !object.ValidEntryName(comp) {
			return false
		}
	}
	return true
}

func (idx *Index) checkEntry(op string, e *Entry) error {
	if !ValidPath(e.Path) {
		return giterr.Newf(op, e.Path, giterr.ErrInvalidArgument, "invalid path")
	}
	if !e.Mode.IsValid() || e.Mode == object.ModeTree {
		return giterr.Newf(op, e.Path, giterr.ErrInvalidArgument, "invalid mode %o", uint32(e.Mode))
	}
	if e.Stage > StageTheirs {
		return giterr.Newf(op, e.Path, giterr.ErrInvalidArgument, "invalid stage %d", e.Stage)
	}
	if len(e.Hash) != idx.algo.HexSize() || !object.IsHexPrefix(string(e.Hash)) {
		return giterr.Newf(op, e.Path, giterr.ErrInvalidArgument, "invalid id %q", e.Hash)
	}
	return nil
}

// search returns the position of (path, stage) and whether it is present.
func (idx *Index) search(path string, stage Stage) (int, bool) {
	key := Entry{Path: path, Stage: stage}
	i := sort.Search(len(idx.entries), func(i int) bool {
		return !entryLess(&idx.entries[i], &key)
	})
	return i, i < len(idx.entries) && idx.entries[i].Path == path && idx.entries[i].Stage == stage
}

// pathRange returns the half-open range of entries for path, any stage.
func (idx *Index) pathRange(path string) (int, int) {
	lo, _ := idx.search(path, StageNormal)
	hi := lo
	for hi < len(idx.entries) && idx.entries[hi].Path == path {
		hi++
	}
	return lo, hi
}

// Add inserts or replaces an entry. Adding a resolved (stage 0) entry
// removes any conflict stages for the path and any stage-0 entries that
// would collide as file versus directory; adding a conflict stage removes
// the stage-0 entry.
func (idx *Index) Add(e Entry) error {
	e.Hash = object.Hash(strings.ToLower(string(e.Hash)))
	if err := idx.checkEntry("index add", &e); err != nil {
		return err
	}
	if e.Stage == StageNormal {
		idx.removeStages(e.Path, func(s Stage) bool { return s != StageNormal })
		idx.removeDirFileConflicts(e.Path)
	} else {
		idx.removeStages(e.Path, func(s Stage) bool { return s == StageNormal })
	}
	idx.insert(e)
	return nil
}

func (idx *Index) insert(e Entry) {
	i, found := idx.search(e.Path, e.Stage)
	if found {
		idx.entries[i] = e
		return
	}
	idx.entries = append(idx.entries, Entry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = e
}

func (idx *Index) removeStages(path string, drop func(Stage) bool) {
	lo, hi := idx.pathRange(path)
	kept := idx.entries[:lo]
	for _, e := range idx.entries[lo:hi] {
		if !drop(e.Stage) {
			kept = append(kept, e)
		}
	}
	idx.entries = append(kept, idx.entries[hi:]...)
}

// removeDirFileConflicts drops stage-0 entries that are parents of path
// or live underneath it.
func (idx *Index) removeDirFileConflicts(path string) {
	kept := idx.entries[:0]
	prefix := path + "/"
	for _, e := range idx.entries {
		if e.Stage == StageNormal && (strings.HasPrefix(e.Path, prefix) || strings.HasPrefix(prefix, e.Path+"/")) {
			idx.logger.Debug("index add replaced conflicting path", "path", e.Path, "by", path)
			continue
		}
		kept = append(kept, e)
	}
	idx.entries = kept
}

// Get returns the entry for path at stage.
func (idx *Index) Get(path string, stage Stage) (Entry, bool) {
	i, found := idx.search(path, stage)
	if !found {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// Remove deletes the entry for path at stage.
func (idx *Index) Remove(path string, stage Stage) error {
	i, found := idx.search(path, stage)
	if !found {
		return giterr.New("index remove", path, giterr.ErrNotFound)
	}
	idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
	return nil
}

// RemoveDirectory deletes every entry at stage below dir and returns how
// many were removed.
func (idx *Index) RemoveDirectory(dir string, stage Stage) int {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	kept := idx.entries[:0]
	removed := 0
	for _, e := range idx.entries {
		if e.Stage == stage && strings.HasPrefix(e.Path, prefix) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	idx.entries = kept
	return removed
}

// Entries returns a copy of all entries in index order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

func (idx *Index) Len() int { return len(idx.entries) }

// Clear removes every entry. The backing file is untouched until Write.
func (idx *Index) Clear() { idx.entries = nil }

func (idx *Index) snapshot() []Entry { return idx.Entries() }

func (idx *Index) restore(entries []Entry) { idx.entries = entries }
