// Package refs implements git's reference database: loose files under
// refs/, the packed-refs file, symbolic references and per-reference
// reflogs.
package refs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// MaxSymbolicDepth bounds symbolic reference chains.
const MaxSymbolicDepth = 10

// Reference is either direct (Target set) or symbolic (Symbolic set).
type Reference struct {
	Name     string
	Target   object.Hash
	Symbolic string
}

// IsSymbolic reports whether the reference names another reference.
func (r *Reference) IsSymbolic() bool { return r.Symbolic != "" }

func (r *Reference) content() string {
	if r.IsSymbolic() {
		return "ref: " + r.Symbolic + "\n"
	}
	return string(r.Target) + "\n"
}

// Options configures a DB.
type Options struct {
	Algorithm object.HashAlgorithm
	// LogAllRefUpdates mirrors core.logAllRefUpdates: HEAD, branches,
	// remote-tracking refs and notes get a reflog on first update.
	LogAllRefUpdates bool
	// Identity supplies the committer recorded in reflog entries.
	Identity func() object.Signature
	// ObjectExists, when set, rejects direct references to missing objects.
	ObjectExists func(object.Hash) bool
	// Peeler resolves an annotated tag to the object it ultimately names.
	// Pack uses it to record peeled values.
	Peeler func(object.Hash) (object.Hash, error)
	Logger *slog.Logger
}

// DB is the reference store of one git directory.
type DB struct {
	gitDir   string
	algo     object.HashAlgorithm
	logAll   bool
	identity func() object.Signature
	exists   func(object.Hash) bool
	peeler   func(object.Hash) (object.Hash, error)
	logger   *slog.Logger
}

// New returns a DB rooted at gitDir.
func New(gitDir string, opts Options) *DB {
	if opts.Algorithm == "" {
		opts.Algorithm = object.SHA1
	}
	if opts.Identity == nil {
		opts.Identity = func() object.Signature { return object.NewSignature("unknown", "unknown") }
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &DB{
		gitDir:   gitDir,
		algo:     opts.Algorithm,
		logAll:   opts.LogAllRefUpdates,
		identity: opts.Identity,
		exists:   opts.ObjectExists,
		peeler:   opts.Peeler,
		logger:   opts.Logger,
	}
}

func (db *DB) refPath(name string) string {
	return filepath.Join(db.gitDir, filepath.FromSlash(name))
}

// readLoose reads a loose reference file. It returns nil when the file
// does not exist or is a directory.
func (db *DB) readLoose(name string) (*Reference, error) {
	data, err := os.ReadFile(db.refPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if info, statErr := os.Stat(db.refPath(name)); statErr == nil && info.IsDir() {
			return nil, nil
		}
		return nil, fmt.Errorf("read ref %q: %w", name, err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref:"); ok {
		target = strings.TrimSpace(target)
		if target == "" {
			return nil, giterr.Newf("read ref", name, giterr.ErrCorruption, "empty symbolic target")
		}
		return &Reference{Name: name, Symbolic: target}, nil
	}
	h, err := object.ParseHash(content)
	if err != nil {
		return nil, giterr.Newf("read ref", name, giterr.ErrCorruption, "bad content %q", content)
	}
	return &Reference{Name: name, Target: h}, nil
}

// lookup returns nil without error when name does not exist.
func (db *DB) lookup(name string) (*Reference, error) {
	ref, err := db.readLoose(name)
	if err != nil || ref != nil {
		return ref, err
	}
	p, err := db.lookupPacked(name)
	if err != nil || p == nil {
		return nil, err
	}
	return &Reference{Name: p.name, Target: p.hash}, nil
}

// Lookup returns the reference called name without resolving it. Loose
// files take precedence over packed-refs.
func (db *DB) Lookup(name string) (*Reference, error) {
	if err := checkName("lookup ref", name); err != nil {
		return nil, err
	}
	ref, err := db.lookup(name)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, giterr.New("lookup ref", name, giterr.ErrNotFound)
	}
	return ref, nil
}

// Exists reports whether name is a reference.
func (db *DB) Exists(name string) bool {
	if !ValidName(name) {
		return false
	}
	ref, err := db.lookup(name)
	return err == nil && ref != nil
}

// Resolve follows symbolic references until it reaches a direct one.
// Chains longer than MaxSymbolicDepth or containing a cycle fail with
// giterr.ErrTooManyRedirects.
func (db *DB) Resolve(ref *Reference) (*Reference, error) {
	seen := make(map[string]bool)
	cur := ref
	for hops := 0; cur.IsSymbolic(); hops++ {
		if hops >= MaxSymbolicDepth || seen[cur.Name] {
			return nil, giterr.New("resolve ref", ref.Name, giterr.ErrTooManyRedirects)
		}
		seen[cur.Name] = true
		next, err := db.Lookup(cur.Symbolic)
		if err != nil {
			return nil, giterr.Wrap("resolve ref", ref.Name, err)
		}
		cur = next
	}
	return cur, nil
}

// ResolveName looks up name and resolves it to an object id.
func (db *DB) ResolveName(name string) (object.Hash, error) {
	ref, err := db.Lookup(name)
	if err != nil {
		return "", err
	}
	direct, err := db.Resolve(ref)
	if err != nil {
		return "", err
	}
	return direct.Target, nil
}

// Create writes a direct reference. Unless force is set an existing
// reference fails with giterr.ErrAlreadyExists.
func (db *DB) Create(name string, target object.Hash, force bool, logMessage string) (*Reference, error) {
	if err := checkName("create ref", name); err != nil {
		return nil, err
	}
	if err := db.checkTarget("create ref", name, target); err != nil {
		return nil, err
	}
	ref := &Reference{Name: name, Target: target}
	err := db.update(ref, func(old *Reference) error {
		if old != nil && !force {
			return giterr.New("create ref", name, giterr.ErrAlreadyExists)
		}
		return nil
	}, logMessage)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// CreateSymbolic writes a symbolic reference pointing at target.
func (db *DB) CreateSymbolic(name, target string, force bool, logMessage string) (*Reference, error) {
	if err := checkName("create symbolic ref", name); err != nil {
		return nil, err
	}
	if err := checkName("create symbolic ref", target); err != nil {
		return nil, err
	}
	ref := &Reference{Name: name, Symbolic: target}
	err := db.update(ref, func(old *Reference) error {
		if old != nil && !force {
			return giterr.New("create symbolic ref", name, giterr.ErrAlreadyExists)
		}
		return nil
	}, logMessage)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// SetTarget overwrites an existing direct reference.
func (db *DB) SetTarget(name string, target object.Hash, logMessage string) (*Reference, error) {
	if err := checkName("set ref target", name); err != nil {
		return nil, err
	}
	if err := db.checkTarget("set ref target", name, target); err != nil {
		return nil, err
	}
	ref := &Reference{Name: name, Target: target}
	err := db.update(ref, func(old *Reference) error {
		if old == nil {
			return giterr.New("set ref target", name, giterr.ErrNotFound)
		}
		if old.IsSymbolic() {
			return giterr.Newf("set ref target", name, giterr.ErrInvalidArgument, "reference is symbolic")
		}
		return nil
	}, logMessage)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// SetSymbolicTarget overwrites an existing symbolic reference.
func (db *DB) SetSymbolicTarget(name, target, logMessage string) (*Reference, error) {
	if err := checkName("set symbolic target", name); err != nil {
		return nil, err
	}
	if err := checkName("set symbolic target", target); err != nil {
		return nil, err
	}
	ref := &Reference{Name: name, Symbolic: target}
	err := db.update(ref, func(old *Reference) error {
		if old == nil {
			return giterr.New("set symbolic target", name, giterr.ErrNotFound)
		}
		if !old.IsSymbolic() {
			return giterr.Newf("set symbolic target", name, giterr.ErrInvalidArgument, "reference is direct")
		}
		return nil
	}, logMessage)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// CompareAndSwap points name at target only if it currently resolves to
// expectedOld. A zero or empty expectedOld requires that name does not
// exist yet. A mismatch fails with giterr.ErrCASMismatch.
func (db *DB) CompareAndSwap(name string, target, expectedOld object.Hash, logMessage string) error {
	if err := checkName("update ref", name); err != nil {
		return err
	}
	if err := db.checkTarget("update ref", name, target); err != nil {
		return err
	}
	ref := &Reference{Name: name, Target: target}
	return db.update(ref, func(old *Reference) error {
		var current object.Hash
		if old != nil {
			if old.IsSymbolic() {
				return giterr.Newf("update ref", name, giterr.ErrInvalidArgument, "reference is symbolic")
			}
			current = old.Target
		}
		if current == expectedOld || (current == "" && expectedOld.IsZero()) {
			return nil
		}
		found := current
		if found == "" {
			found = "(none)"
		}
		return giterr.Newf("update ref", name, giterr.ErrCASMismatch, "expected %s, found %s", expectedOld, found)
	}, logMessage)
}

func (db *DB) checkTarget(op, name string, target object.Hash) error {
	if len(target) != db.algo.HexSize() {
		return giterr.Newf(op, name, giterr.ErrInvalidArgument, "invalid target %q", target)
	}
	if _, err := object.ParseHash(string(target)); err != nil {
		return giterr.Newf(op, name, giterr.ErrInvalidArgument, "invalid target %q", target)
	}
	if db.exists != nil && !db.exists(target) {
		return giterr.Newf(op, name, giterr.ErrNotFound, "target object %s does not exist", target)
	}
	return nil
}

// update writes ref under its lock. check sees the value found while the
// lock is held and may veto the write.
func (db *DB) update(ref *Reference, check func(old *Reference) error, logMessage string) error {
	if err := db.checkConflicts(ref.Name, ""); err != nil {
		return err
	}
	path := db.refPath(ref.Name)
	// A directory left behind by deleted children would block the rename.
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		os.Remove(path)
	}

	lock, err := lockfile.Acquire(path, lockfile.DefaultWait)
	if err != nil {
		return giterr.Wrap("update ref", ref.Name, err)
	}
	defer lock.Rollback()

	old, err := db.lookup(ref.Name)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(old); err != nil {
			return err
		}
	}
	if _, err := lock.Write([]byte(ref.content())); err != nil {
		return fmt.Errorf("update ref %q: write: %w", ref.Name, err)
	}
	if err := lock.Commit(); err != nil {
		return fmt.Errorf("update ref %q: %w", ref.Name, err)
	}

	oldHash, newHash := db.peelForLog(old), db.peelForLog(ref)
	db.logger.Debug("ref updated", "ref", ref.Name, "old", oldHash, "new", newHash)
	if ref.IsSymbolic() && logMessage == "" {
		return nil
	}
	if err := db.logUpdate(ref.Name, oldHash, newHash, logMessage); err != nil {
		return &ReflogError{Ref: ref.Name, OldHash: oldHash, NewHash: newHash, Err: err}
	}
	return nil
}

// peelForLog returns the id ref resolves to, or "" when it cannot.
func (db *DB) peelForLog(ref *Reference) object.Hash {
	if ref == nil {
		return ""
	}
	if !ref.IsSymbolic() {
		return ref.Target
	}
	direct, err := db.Resolve(ref)
	if err != nil {
		return ""
	}
	return direct.Target
}

// checkConflicts rejects names that would nest a reference inside an
// existing one ("refs/heads/a" vs "refs/heads/a/b"), ignoring ignore.
func (db *DB) checkConflicts(name, ignore string) error {
	parts := strings.Split(name, "/")
	for i := 2; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], "/")
		if prefix == ignore {
			continue
		}
		if ref, err := db.lookup(prefix); err == nil && ref != nil {
			return giterr.Newf("update ref", name, giterr.ErrAlreadyExists, "%s exists", prefix)
		}
	}
	if !strings.HasPrefix(name, "refs/") {
		return nil
	}
	children, err := db.List(name + "/")
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Name != ignore {
			return giterr.Newf("update ref", name, giterr.ErrAlreadyExists, "%s exists", child.Name)
		}
	}
	return nil
}

// Rename moves a reference and its reflog to a new name. HEAD follows the
// rename when it pointed at the old name.
func (db *DB) Rename(oldName, newName string, force bool, logMessage string) (*Reference, error) {
	if err := checkName("rename ref", oldName); err != nil {
		return nil, err
	}
	if err := checkName("rename ref", newName); err != nil {
		return nil, err
	}
	ref, err := db.Lookup(oldName)
	if err != nil {
		return nil, err
	}
	if oldName == newName {
		return ref, nil
	}
	existing, err := db.lookup(newName)
	if err != nil {
		return nil, err
	}
	if existing != nil && !force {
		return nil, giterr.New("rename ref", newName, giterr.ErrAlreadyExists)
	}
	if err := db.checkConflicts(newName, oldName); err != nil {
		return nil, err
	}

	logData, err := os.ReadFile(db.logPath(oldName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("rename ref %q: read reflog: %w", oldName, err)
	}
	hadLog := err == nil

	if err := db.removeRef(oldName); err != nil {
		return nil, err
	}
	if existing != nil {
		if err := db.removeRef(newName); err != nil {
			return nil, err
		}
	}

	renamed := &Reference{Name: newName, Target: ref.Target, Symbolic: ref.Symbolic}
	if err := lockfile.WriteFile(db.refPath(newName), []byte(renamed.content()), lockfile.DefaultWait); err != nil {
		// Put the old name back so the rename is all-or-nothing.
		lockfile.WriteFile(db.refPath(oldName), []byte(ref.content()), lockfile.DefaultWait)
		if hadLog {
			db.writeLogFile(oldName, logData)
		}
		return nil, fmt.Errorf("rename ref %q: %w", oldName, err)
	}
	if hadLog {
		if err := db.writeLogFile(newName, logData); err != nil {
			return nil, err
		}
	}
	if logMessage != "" && !ref.IsSymbolic() {
		if err := db.logUpdate(newName, ref.Target, ref.Target, logMessage); err != nil {
			return nil, err
		}
	}

	head, err := db.readLoose(HEAD)
	if err == nil && head != nil && head.Symbolic == oldName {
		if err := lockfile.WriteFile(db.refPath(HEAD), []byte("ref: "+newName+"\n"), lockfile.DefaultWait); err != nil {
			return nil, fmt.Errorf("rename ref %q: repoint HEAD: %w", oldName, err)
		}
	}
	db.logger.Debug("ref renamed", "old", oldName, "new", newName)
	return renamed, nil
}

// Delete removes a reference from both loose and packed storage, together
// with its reflog.
func (db *DB) Delete(name string) error {
	if err := checkName("delete ref", name); err != nil {
		return err
	}
	ref, err := db.lookup(name)
	if err != nil {
		return err
	}
	if ref == nil {
		return giterr.New("delete ref", name, giterr.ErrNotFound)
	}
	if err := db.removeRef(name); err != nil {
		return err
	}
	db.logger.Debug("ref deleted", "ref", name)
	return nil
}

// removeRef deletes the loose file, the packed entry and the reflog.
func (db *DB) removeRef(name string) error {
	path := db.refPath(name)
	lock, err := lockfile.Acquire(path, lockfile.DefaultWait)
	if err != nil {
		return giterr.Wrap("delete ref", name, err)
	}
	defer lock.Rollback()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if err := db.removePacked(name); err != nil {
		return err
	}
	if err := db.deleteLog(name); err != nil {
		return err
	}
	lock.Rollback()
	db.pruneEmptyDirs(filepath.Dir(path), filepath.Join(db.gitDir, "refs"))
	return nil
}

func (db *DB) removeLooseIfUnchanged(name string, want object.Hash) error {
	path := db.refPath(name)
	lock, err := lockfile.Acquire(path, lockfile.DefaultWait)
	if err != nil {
		return giterr.Wrap("prune ref", name, err)
	}
	defer lock.Rollback()
	ref, err := db.readLoose(name)
	if err != nil || ref == nil || ref.IsSymbolic() || ref.Target != want {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("prune ref %q: %w", name, err)
	}
	lock.Rollback()
	db.pruneEmptyDirs(filepath.Dir(path), filepath.Join(db.gitDir, "refs"))
	return nil
}

// pruneEmptyDirs removes empty directories from dir upwards. Direct
// children of stop (refs/heads, refs/tags, ...) are kept.
func (db *DB) pruneEmptyDirs(dir, stop string) {
	for strings.HasPrefix(dir, stop) && dir != stop && filepath.Dir(dir) != stop {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// listLoose returns every loose reference under refs/.
func (db *DB) listLoose() ([]*Reference, error) {
	root := filepath.Join(db.gitDir, "refs")
	var out []*Reference
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(db.gitDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !ValidName(name) {
			return nil
		}
		ref, err := db.readLoose(name)
		if err != nil {
			return err
		}
		if ref != nil {
			out = append(out, ref)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return out, nil
}

// List returns every reference whose name starts with prefix, sorted by
// name. Only the refs/ hierarchy is listed.
func (db *DB) List(prefix string) ([]*Reference, error) {
	loose, err := db.listLoose()
	if err != nil {
		return nil, err
	}
	packed, err := db.readPacked()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Reference, len(loose)+len(packed))
	for _, p := range packed {
		byName[p.name] = &Reference{Name: p.name, Target: p.hash}
	}
	for _, ref := range loose {
		byName[ref.Name] = ref
	}

	out := make([]*Reference, 0, len(byName))
	for name, ref := range byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Glob returns references whose full name matches pattern. Wildcards may
// match across "/".
func (db *DB) Glob(pattern string) ([]*Reference, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, giterr.Newf("glob refs", pattern, giterr.ErrInvalidArgument, "%v", err)
	}
	all, err := db.List("")
	if err != nil {
		return nil, err
	}
	var out []*Reference
	for _, ref := range all {
		if g.Match(ref.Name) {
			out = append(out, ref)
		}
	}
	return out, nil
}
