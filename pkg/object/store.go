package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
)

// StoreOptions configures a Store. Zero values select SHA-1, the default
// zlib level, synced writes and a discarding logger.
type StoreOptions struct {
	Algorithm        HashAlgorithm
	CompressionLevel int // zlib level; 0 selects zlib.DefaultCompression
	// NoFsync skips syncing object files and their fan-out directory.
	// Writes stay atomic but may not survive a crash.
	NoFsync bool
	Logger  *slog.Logger
}

// Store is a loose-object database with git's 2-character fan-out
// directory layout: objects/ab/cdef0123...
//
// Each file holds zlib("type len\0" + payload).
type Store struct {
	root   string
	algo   HashAlgorithm
	level  int
	fsync  bool
	logger *slog.Logger
}

// NewStore creates a SHA-1 Store rooted at the given git directory. The
// objects/ subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return NewStoreWithOptions(root, StoreOptions{})
}

// NewStoreWithOptions creates a Store with explicit options.
func NewStoreWithOptions(root string, opts StoreOptions) *Store {
	if opts.Algorithm == "" {
		opts.Algorithm = SHA1
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = zlib.DefaultCompression
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		root:   root,
		algo:   opts.Algorithm,
		level:  opts.CompressionLevel,
		fsync:  !opts.NoFsync,
		logger: opts.Logger,
	}
}

// SyncsWrites reports whether Write syncs objects before returning.
func (s *Store) SyncsWrites() bool { return s.fsync }

// Algorithm returns the digest used for object ids.
func (s *Store) Algorithm() HashAlgorithm { return s.algo }

// objectsDir returns the root of the fan-out tree.
func (s *Store) objectsDir() string {
	return filepath.Join(s.root, "objects")
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.objectsDir(), string(h[:2]), string(h[2:]))
}

func (s *Store) validHash(h Hash) bool {
	return len(h) == s.algo.HexSize() && isHex(string(h))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if !s.validHash(h) {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Hash computes the id data would be stored under, without writing.
func (s *Store) Hash(objType ObjectType, data []byte) Hash {
	return HashObject(s.algo, objType, data)
}

// Write stores an object and returns its content hash. Writes are atomic
// and durable: data is compressed into a temp file in the fan-out
// directory, synced, renamed into place, and the directory is synced
// (unless NoFsync is set). Writing an existing object is a no-op.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	if _, err := ParseObjectType(string(objType)); err != nil {
		return "", giterr.Wrap("object write", "", err)
	}
	h := s.Hash(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.objectsDir(), string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tmp_obj_*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(stage string, err error) (Hash, error) {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write %s: %w", stage, err)
	}

	zw, err := zlib.NewWriterLevel(tmp, s.level)
	if err != nil {
		return fail("compress", err)
	}
	if _, err := fmt.Fprintf(zw, "%s %d\x00", objType, len(data)); err != nil {
		return fail("header", err)
	}
	if _, err := zw.Write(data); err != nil {
		return fail("payload", err)
	}
	if err := zw.Close(); err != nil {
		return fail("compress", err)
	}
	if s.fsync {
		if err := tmp.Sync(); err != nil {
			return fail("sync", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write chmod: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		// Another writer may have won the race with identical content.
		if s.Has(h) {
			return h, nil
		}
		return "", fmt.Errorf("object write rename: %w", err)
	}
	if s.fsync {
		if err := lockfile.SyncDir(dir); err != nil {
			return "", fmt.Errorf("object write: %w", err)
		}
	}

	s.logger.Debug("object written", "hash", h, "type", objType, "size", len(data))
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if !s.validHash(h) {
		return "", nil, giterr.Newf("object read", string(h), giterr.ErrInvalidArgument, "malformed id")
	}
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, giterr.New("object read", string(h), giterr.ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, giterr.Newf("object read", string(h), giterr.ErrCorruption, "zlib: %v", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, giterr.Newf("object read", string(h), giterr.ErrCorruption, "zlib: %v", err)
	}

	objType, content, err := parseEnvelope(raw)
	if err != nil {
		return "", nil, giterr.Newf("object read", string(h), giterr.ErrCorruption, "%v", err)
	}
	return objType, content, nil
}

// parseEnvelope splits "type len\0content" and checks the length.
func parseEnvelope(raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("invalid format (no NUL)")
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	typ, sizeStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("invalid header %q", header)
	}
	objType, err := ParseObjectType(typ)
	if err != nil {
		return "", nil, fmt.Errorf("invalid type %q", typ)
	}
	length, err := strconv.Atoi(sizeStr)
	if err != nil {
		return "", nil, fmt.Errorf("invalid length %q", sizeStr)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("length mismatch (header=%d, actual=%d)", length, len(content))
	}
	return objType, content, nil
}

// ReadHeader returns the type and payload size of an object.
func (s *Store) ReadHeader(h Hash) (ObjectType, int, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return "", 0, err
	}
	return objType, len(data), nil
}

// ReadObject reads an object and decodes it into its concrete kind.
func (s *Store) ReadObject(h Hash) (Object, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	obj, err := Unmarshal(s.algo, objType, data)
	if err != nil {
		return nil, giterr.Wrap("object decode", string(h), err)
	}
	return obj, nil
}

// WriteObject encodes and stores any object kind.
func (s *Store) WriteObject(obj Object) (Hash, error) {
	data, err := Marshal(s.algo, obj)
	if err != nil {
		return "", err
	}
	return s.Write(obj.Type(), data)
}

// ExistsPrefix resolves an abbreviated hex id to the single object it
// names. Prefixes shorter than MinPrefixLen are rejected.
func (s *Store) ExistsPrefix(prefix string) (Hash, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len(prefix) < MinPrefixLen || len(prefix) > s.algo.HexSize() || !isHex(prefix) {
		return "", giterr.Newf("object lookup", prefix, giterr.ErrInvalidArgument, "need %d-%d hex characters", MinPrefixLen, s.algo.HexSize())
	}
	if len(prefix) == s.algo.HexSize() {
		if s.Has(Hash(prefix)) {
			return Hash(prefix), nil
		}
		return "", giterr.New("object lookup", prefix, giterr.ErrNotFound)
	}

	entries, err := os.ReadDir(filepath.Join(s.objectsDir(), prefix[:2]))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", giterr.New("object lookup", prefix, giterr.ErrNotFound)
		}
		return "", fmt.Errorf("object lookup %s: %w", prefix, err)
	}
	rest := prefix[2:]
	var match Hash
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != s.algo.HexSize()-2 || !strings.HasPrefix(name, rest) {
			continue
		}
		if match != "" {
			return "", giterr.New("object lookup", prefix, giterr.ErrAmbiguousPrefix)
		}
		match = Hash(prefix[:2] + name)
	}
	if match == "" {
		return "", giterr.New("object lookup", prefix, giterr.ErrNotFound)
	}
	return match, nil
}

// List returns every loose object id in sorted order.
func (s *Store) List() ([]Hash, error) {
	var out []Hash
	fanout, err := os.ReadDir(s.objectsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("object list: %w", err)
	}
	for _, d := range fanout {
		if !d.IsDir() || len(d.Name()) != 2 || !isHex(d.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.objectsDir(), d.Name()))
		if err != nil {
			return nil, fmt.Errorf("object list %s: %w", d.Name(), err)
		}
		for _, f := range files {
			h := Hash(d.Name() + f.Name())
			if !f.IsDir() && s.validHash(h) {
				out = append(out, h)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// VerifyReport summarizes an integrity scan of the loose objects.
type VerifyReport struct {
	Checked int
	Corrupt []Hash
}

// Verify re-reads and re-hashes every loose object. Objects that fail to
// decode or whose content no longer matches their name are reported.
func (s *Store) Verify() (VerifyReport, error) {
	var report VerifyReport
	ids, err := s.List()
	if err != nil {
		return report, err
	}
	for _, h := range ids {
		report.Checked++
		objType, data, err := s.Read(h)
		if err != nil {
			if errors.Is(err, giterr.ErrCorruption) {
				s.logger.Warn("corrupt object", "hash", h, "error", err)
				report.Corrupt = append(report.Corrupt, h)
				continue
			}
			return report, err
		}
		if got := s.Hash(objType, data); got != h {
			s.logger.Warn("object hash mismatch", "hash", h, "actual", got)
			report.Corrupt = append(report.Corrupt, h)
		}
	}
	return report, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, giterr.Newf("object read", string(h), giterr.ErrInvalidArgument, "type mismatch: got %q, want %q", objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a Tree. Entries are checked the way
// MarshalTree checks them; a TreeBuilder also verifies that the objects
// they name exist.
func (s *Store) WriteTree(tr *Tree) (Hash, error) {
	data, err := MarshalTree(s.algo, tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a Tree.
func (s *Store) ReadTree(h Hash) (*Tree, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(s.algo, data)
}

// WriteCommit serializes and stores a Commit.
func (s *Store) WriteCommit(c *Commit) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a Commit.
func (s *Store) ReadCommit(h Hash) (*Commit, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores an annotated Tag.
func (s *Store) WriteTag(t *Tag) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes an annotated Tag.
func (s *Store) ReadTag(h Hash) (*Tag, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	return UnmarshalTag(data)
}
