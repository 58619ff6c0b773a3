// Package repo ties the object store, reference database and index of a
// git directory together into a repository with HEAD, branches, tags,
// commits and merges.
package repo

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/index"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
	"github.com/odvcencio/gitcore/pkg/revwalk"
)

// Repo represents an opened git repository.
type Repo struct {
	RootDir string        // working directory root; empty for bare repositories
	GitDir  string        // .git/ directory
	Store   *object.Store // content-addressed object store
	Refs    *refs.DB      // references and reflogs

	config *Config
	logger *slog.Logger
}

// Options configures how a repository is opened.
type Options struct {
	Logger *slog.Logger
}

// Bare reports whether the repository has no working directory.
func (r *Repo) Bare() bool { return r.RootDir == "" }

// Algorithm returns the object format of the repository.
func (r *Repo) Algorithm() object.HashAlgorithm { return r.Store.Algorithm() }

// Config returns the repository configuration as last loaded or saved.
func (r *Repo) Config() *Config { return r.config }

// Logger returns the logger the repository reports to.
func (r *Repo) Logger() *slog.Logger { return r.logger }

// Close releases the repository. It must not be used afterwards.
func (r *Repo) Close() error {
	return nil
}

func (r *Repo) path(elem ...string) string {
	return filepath.Join(append([]string{r.GitDir}, elem...)...)
}

// IndexPath returns the location of the index file.
func (r *Repo) IndexPath() string { return r.path("index") }

// Index opens the repository index. A missing index file yields an empty
// index that Write will create.
func (r *Repo) Index() (*index.Index, error) {
	return index.Open(r.IndexPath(), index.Options{Algorithm: r.Algorithm(), Logger: r.logger})
}

// Walker returns a commit walker over the repository's objects and refs.
func (r *Repo) Walker() *revwalk.Walker {
	w := revwalk.New(r.Store, r.Refs)
	w.SetResolver(r.RevParse)
	return w
}

// wire builds the store and refdb for a git directory from its config.
func (r *Repo) wire() error {
	algo, err := r.config.ObjectFormat()
	if err != nil {
		return err
	}
	r.Store = object.NewStoreWithOptions(r.GitDir, object.StoreOptions{
		Algorithm:        algo,
		CompressionLevel: r.config.Int("core.compression", 0),
		NoFsync:          !r.config.Bool("core.fsyncobjects", true),
		Logger:           r.logger,
	})
	r.Refs = refs.New(r.GitDir, refs.Options{
		Algorithm:        algo,
		LogAllRefUpdates: r.config.Bool("core.logallrefupdates", !r.Bare()),
		Identity:         r.committer,
		ObjectExists:     r.Store.Has,
		Peeler:           r.peelTag,
		Logger:           r.logger,
	})
	return nil
}

func isGitDir(dir string) bool {
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
