// Package lockfile implements git's "<path>.lock" convention: a writer
// creates the lock exclusively, writes the new content into it, and
// renames it over the target. Readers never observe a partial file.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

const retryDelay = 5 * time.Millisecond

// DefaultWait is how long reference writers wait for a competing lock.
const DefaultWait = 2 * time.Second

// File is an acquired lock on a target path.
type File struct {
	path     string
	lockPath string
	f        *os.File
}

// Acquire creates path+".lock" exclusively. While another writer holds the
// lock it retries until wait elapses, then fails with giterr.ErrLocked. A
// zero wait fails on the first collision.
func Acquire(path string, wait time.Duration) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock %s: mkdir: %w", path, err)
	}
	lockPath := path + ".lock"
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return &File{path: path, lockPath: lockPath, f: f}, nil
		}
		if errors.Is(err, fs.ErrExist) {
			if !time.Now().Before(deadline) {
				return nil, giterr.Newf("lock", lockPath, giterr.ErrLocked, "held by another writer")
			}
			time.Sleep(retryDelay)
			continue
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
}

// Path returns the target path the lock protects.
func (l *File) Path() string { return l.path }

func (l *File) Write(p []byte) (int, error) {
	if l.f == nil {
		return 0, fmt.Errorf("lock %s: already released", l.path)
	}
	return l.f.Write(p)
}

// Commit syncs the lock file, renames it into place and syncs the
// directory holding it.
func (l *File) Commit() error {
	if l.f == nil {
		return fmt.Errorf("lock %s: already released", l.path)
	}
	if err := l.f.Sync(); err != nil {
		l.Rollback()
		return fmt.Errorf("lock %s: sync: %w", l.path, err)
	}
	if err := l.f.Close(); err != nil {
		l.f = nil
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %s: close: %w", l.path, err)
	}
	l.f = nil
	if err := os.Rename(l.lockPath, l.path); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("lock %s: rename: %w", l.path, err)
	}
	if err := SyncDir(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	return nil
}

// SyncDir flushes dir's entries so a rename into it survives a crash.
// Windows cannot open directories for syncing; there it is a no-op.
func SyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// Rollback releases the lock without touching the target. It is a no-op
// after Commit.
func (l *File) Rollback() {
	if l.f == nil {
		return
	}
	l.f.Close()
	l.f = nil
	os.Remove(l.lockPath)
}

// WriteFile replaces path with data under a lock.
func WriteFile(path string, data []byte, wait time.Duration) error {
	l, err := Acquire(path, wait)
	if err != nil {
		return err
	}
	if _, err := l.Write(data); err != nil {
		l.Rollback()
		return fmt.Errorf("lock %s: write: %w", path, err)
	}
	return l.Commit()
}
