package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()

	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.GitDir != filepath.Join(dir, ".git") || r.RootDir != dir {
		t.Fatalf("paths = %q / %q", r.RootDir, r.GitDir)
	}
	if r.Bare() {
		t.Fatalf("Init created a bare repository")
	}

	for _, p := range []string{"objects/info", "objects/pack", "refs/heads", "refs/tags"} {
		info, err := os.Stat(filepath.Join(r.GitDir, p))
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", p, err)
		}
	}
	head, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(head) != "ref: refs/heads/main\n" {
		t.Fatalf("HEAD = %q", head)
	}

	unborn, err := r.HeadUnborn()
	if err != nil {
		t.Fatalf("HeadUnborn: %v", err)
	}
	if !unborn {
		t.Fatalf("new repository HEAD is not unborn")
	}
	if h, err := r.HeadCommit(); err != nil || h != "" {
		t.Fatalf("HeadCommit = %q, %v; want empty", h, err)
	}
	if r.Config().String("core.repositoryformatversion", "") != "0" {
		t.Fatalf("repositoryformatversion = %q", r.Config().String("core.repositoryformatversion", ""))
	}
	if !r.Config().Bool("core.logallrefupdates", false) {
		t.Fatalf("core.logallrefupdates not enabled")
	}
}

func TestInit_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Init(dir); !errors.Is(err, giterr.ErrAlreadyExists) {
		t.Fatalf("second Init err = %v, want already exists", err)
	}
}

func TestInit_Bare(t *testing.T) {
	dir := t.TempDir()

	r, err := InitWithOptions(dir, InitOptions{Bare: true, DefaultBranch: "trunk"})
	if err != nil {
		t.Fatalf("InitWithOptions: %v", err)
	}
	if !r.Bare() || r.GitDir != dir {
		t.Fatalf("bare repo paths = %q / %q", r.RootDir, r.GitDir)
	}
	name, err := r.HeadName()
	if err != nil {
		t.Fatalf("HeadName: %v", err)
	}
	if name != "refs/heads/trunk" {
		t.Fatalf("HEAD names %q, want refs/heads/trunk", name)
	}
	if _, err := r.Worktree(); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("Worktree err = %v, want invalid argument", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open(bare): %v", err)
	}
	if !reopened.Bare() {
		t.Fatalf("reopened bare repository has worktree %q", reopened.RootDir)
	}
}

func TestInit_SHA256(t *testing.T) {
	dir := t.TempDir()

	r, err := InitWithOptions(dir, InitOptions{ObjectFormat: object.SHA256})
	if err != nil {
		t.Fatalf("InitWithOptions: %v", err)
	}
	if r.Algorithm() != object.SHA256 {
		t.Fatalf("Algorithm = %s", r.Algorithm())
	}
	r.Config().Set("user.name", "Test Author")
	r.Config().Set("user.email", "test@example.com")

	h := commitFile(t, r, "a.txt", "a\n", "sha256 commit\n")
	if len(h) != 64 {
		t.Fatalf("commit id %q is not a SHA-256 id", h)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Algorithm() != object.SHA256 {
		t.Fatalf("reopened Algorithm = %s", reopened.Algorithm())
	}
	if got, _ := reopened.Config().Get("core.repositoryformatversion"); got != "1" {
		t.Fatalf("repositoryformatversion = %q, want 1", got)
	}
	head, err := reopened.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if head != h {
		t.Fatalf("HEAD = %s, want %s", head, h)
	}
}

func TestOpen_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r, err := Open(sub)
	if err != nil {
		t.Fatalf("Open(sub): %v", err)
	}
	if r.RootDir != dir {
		t.Fatalf("RootDir = %q, want %q", r.RootDir, dir)
	}

	viaGitDir, err := Open(filepath.Join(dir, ".git"))
	if err != nil {
		t.Fatalf("Open(.git): %v", err)
	}
	if viaGitDir.RootDir != dir {
		t.Fatalf("RootDir via .git = %q, want %q", viaGitDir.RootDir, dir)
	}
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("Open err = %v, want not found", err)
	}
	if !strings.Contains(err.Error(), "not a git repository") {
		t.Fatalf("Open err = %q", err)
	}
}

func TestOpen_FsyncObjectsDefaultsOn(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !r.Store.SyncsWrites() {
		t.Fatal("new repository does not sync object writes")
	}

	r.Config().Set("core.fsyncObjects", "false")
	if err := r.SaveConfig(); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Store.SyncsWrites() {
		t.Fatal("core.fsyncObjects=false still syncs object writes")
	}
}
