package repo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// DefaultBranch is the branch HEAD names in a new repository when neither
// InitOptions nor init.defaultBranch choose one.
const DefaultBranch = "main"

// InitOptions configures Init.
type InitOptions struct {
	// Bare creates the git directory at path itself, with no worktree.
	Bare bool
	// ObjectFormat selects SHA-1 (default) or SHA-256 object ids.
	ObjectFormat object.HashAlgorithm
	// DefaultBranch is the unborn branch HEAD points at.
	DefaultBranch string
	Logger        *slog.Logger
}

// Init creates a new git repository at path. It creates the .git/
// directory structure: HEAD, config, objects/ and refs/. Returns an error
// wrapping giterr.ErrAlreadyExists if a repository already exists there.
func Init(path string) (*Repo, error) {
	return InitWithOptions(path, InitOptions{})
}

// InitWithOptions is Init with explicit options.
func InitWithOptions(path string, opts InitOptions) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	gitDir, root := filepath.Join(abs, ".git"), abs
	if opts.Bare {
		gitDir, root = abs, ""
	}
	if isGitDir(gitDir) {
		return nil, giterr.New("init", gitDir, giterr.ErrAlreadyExists)
	}
	if opts.ObjectFormat == "" {
		opts.ObjectFormat = object.SHA1
	}
	if _, err := object.ParseHashAlgorithm(string(opts.ObjectFormat)); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects", "info"),
		filepath.Join(gitDir, "objects", "pack"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	cfg := newConfig(filepath.Join(gitDir, "config"))
	version := "0"
	if opts.ObjectFormat != object.SHA1 {
		version = "1"
		cfg.Set("extensions.objectformat", string(opts.ObjectFormat))
	}
	cfg.Set("core.repositoryformatversion", version)
	cfg.SetBool("core.filemode", true)
	cfg.SetBool("core.bare", opts.Bare)
	if !opts.Bare {
		cfg.SetBool("core.logallrefupdates", true)
	}
	if err := cfg.Save(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	branch := opts.DefaultBranch
	if branch == "" {
		branch = DefaultBranch
	}
	head := refs.HeadsPrefix + branch
	if !refs.ValidName(head) {
		return nil, giterr.Newf("init", branch, giterr.ErrInvalidArgument, "invalid branch name")
	}
	if err := lockfile.WriteFile(filepath.Join(gitDir, refs.HEAD), []byte("ref: "+head+"\n"), lockfile.DefaultWait); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r := &Repo{RootDir: root, GitDir: gitDir, config: cfg, logger: opts.Logger}
	if err := r.wire(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	r.logger.Debug("repository initialized", "git_dir", gitDir, "object_format", opts.ObjectFormat, "bare", opts.Bare)
	return r, nil
}

// Open searches upward from path for a .git/ directory and opens the
// repository. path may also name a bare repository or a .git directory.
// Returns an error wrapping giterr.ErrNotFound if none is found.
func Open(path string) (*Repo, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions is Open with explicit options.
func OpenWithOptions(path string, opts Options) (*Repo, error) {
	// Resolve to absolute path for consistent traversal.
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() && isGitDir(gitDir) {
			return openGitDir(cur, gitDir, opts)
		}
		if isGitDir(cur) {
			root := ""
			if filepath.Base(cur) == ".git" {
				root = filepath.Dir(cur)
			}
			return openGitDir(root, cur, opts)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding .git/.
			return nil, giterr.Newf("open", abs, giterr.ErrNotFound, "not a git repository (or any parent up to /)")
		}
		cur = parent
	}
}

func openGitDir(root, gitDir string, opts Options) (*Repo, error) {
	cfg, err := loadConfig(filepath.Join(gitDir, "config"))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if root != "" && cfg.Bool("core.bare", false) {
		root = ""
	}
	r := &Repo{RootDir: root, GitDir: gitDir, config: cfg, logger: opts.Logger}
	if err := r.wire(); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return r, nil
}
