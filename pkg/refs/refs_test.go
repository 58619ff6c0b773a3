package refs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	return New(t.TempDir(), Options{
		LogAllRefUpdates: true,
		Identity: func() object.Signature {
			return object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0).UTC()}
		},
	})
}

func hashOf(s string) object.Hash {
	return object.HashObject(object.SHA1, object.TypeBlob, []byte(s))
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"HEAD", true},
		{"ORIG_HEAD", true},
		{"refs/heads/main", true},
		{"refs/heads/feature/x-1", true},
		{"refs/tags/v1.0", true},
		{"head", false},
		{"heads/main", false},
		{"refs/heads/", false},
		{"refs/heads/a..b", false},
		{"refs/heads/a@{1}", false},
		{"refs/heads/.hidden", false},
		{"refs/heads/x.lock", false},
		{"refs/heads/a b", false},
		{"refs/heads/a~1", false},
		{"refs/heads/a^", false},
		{"refs/heads/a:b", false},
		{"refs/heads/a?", false},
		{"refs/heads/a[", false},
		{"refs/heads/a*", false},
		{"refs/heads/a\\b", false},
		{"refs/heads//a", false},
		{"refs/heads/a.", false},
		{"@", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidName(tt.name); got != tt.ok {
			t.Errorf("ValidName(%q) = %v, want %v", tt.name, got, tt.ok)
		}
	}
}

func TestCreateLookupAndForce(t *testing.T) {
	db := testDB(t)
	h1, h2 := hashOf("1"), hashOf("2")

	if _, err := db.Create("refs/heads/main", h1, false, "create"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ref, err := db.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ref.IsSymbolic() || ref.Target != h1 {
		t.Fatalf("Lookup = %+v", ref)
	}

	if _, err := db.Create("refs/heads/main", h2, false, ""); !errors.Is(err, giterr.ErrAlreadyExists) {
		t.Fatalf("non-forced create = %v, want already exists", err)
	}
	if _, err := db.Create("refs/heads/main", h2, true, "force"); err != nil {
		t.Fatalf("forced create: %v", err)
	}
	if got, _ := db.ResolveName("refs/heads/main"); got != h2 {
		t.Fatalf("ResolveName = %s, want %s", got, h2)
	}

	if _, err := db.Lookup("refs/heads/missing"); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("missing ref = %v", err)
	}
	if _, err := db.Create("refs/heads/bad name", h1, false, ""); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("bad name = %v", err)
	}
}

func TestCreateRejectsMissingObject(t *testing.T) {
	db := New(t.TempDir(), Options{ObjectExists: func(object.Hash) bool { return false }})
	if _, err := db.Create("refs/heads/main", hashOf("x"), false, ""); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("Create = %v, want not found", err)
	}
}

func TestNameConflicts(t *testing.T) {
	db := testDB(t)
	if _, err := db.Create("refs/heads/a", hashOf("1"), false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Create("refs/heads/a/b", hashOf("1"), false, ""); !errors.Is(err, giterr.ErrAlreadyExists) {
		t.Fatalf("nested under existing ref = %v", err)
	}
	if _, err := db.Create("refs/heads/x/y", hashOf("1"), false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Create("refs/heads/x", hashOf("1"), false, ""); !errors.Is(err, giterr.ErrAlreadyExists) {
		t.Fatalf("parent of existing ref = %v", err)
	}
}

func TestSymbolicResolution(t *testing.T) {
	db := testDB(t)
	h := hashOf("tip")
	if _, err := db.Create("refs/heads/main", h, false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSymbolic(HEAD, "refs/heads/main", false, ""); err != nil {
		t.Fatal(err)
	}
	head, err := db.Lookup(HEAD)
	if err != nil {
		t.Fatal(err)
	}
	if !head.IsSymbolic() || head.Symbolic != "refs/heads/main" {
		t.Fatalf("HEAD = %+v", head)
	}
	direct, err := db.Resolve(head)
	if err != nil {
		t.Fatal(err)
	}
	if direct.Name != "refs/heads/main" || direct.Target != h {
		t.Fatalf("Resolve = %+v", direct)
	}

	// Dangling symbolic ref.
	if _, err := db.CreateSymbolic("refs/heads/dangling", "refs/heads/nowhere", false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ResolveName("refs/heads/dangling"); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("dangling = %v", err)
	}
}

func TestSymbolicCycleAndDepth(t *testing.T) {
	db := testDB(t)
	if _, err := db.CreateSymbolic("refs/heads/a", "refs/heads/b", false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSymbolic("refs/heads/b", "refs/heads/a", false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ResolveName("refs/heads/a"); !errors.Is(err, giterr.ErrTooManyRedirects) {
		t.Fatalf("cycle = %v", err)
	}

	if _, err := db.Create("refs/heads/end", hashOf("end"), false, ""); err != nil {
		t.Fatal(err)
	}
	prev := "refs/heads/end"
	for i := 0; i < MaxSymbolicDepth+1; i++ {
		name := "refs/chain/" + string(rune('a'+i))
		if _, err := db.CreateSymbolic(name, prev, false, ""); err != nil {
			t.Fatal(err)
		}
		prev = name
	}
	if _, err := db.ResolveName(prev); !errors.Is(err, giterr.ErrTooManyRedirects) {
		t.Fatalf("long chain = %v", err)
	}
	if _, err := db.ResolveName("refs/chain/b"); err != nil {
		t.Fatalf("short chain: %v", err)
	}
}

func TestSetTarget(t *testing.T) {
	db := testDB(t)
	if _, err := db.SetTarget("refs/heads/main", hashOf("1"), ""); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("SetTarget on missing = %v", err)
	}
	db.Create("refs/heads/main", hashOf("1"), false, "")
	db.CreateSymbolic(HEAD, "refs/heads/main", false, "")
	if _, err := db.SetTarget(HEAD, hashOf("2"), ""); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("SetTarget on symbolic = %v", err)
	}
	if _, err := db.SetTarget("refs/heads/main", hashOf("2"), "move"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SetSymbolicTarget(HEAD, "refs/heads/other", "switch"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SetSymbolicTarget("refs/heads/main", HEAD, ""); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("SetSymbolicTarget on direct = %v", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	db := testDB(t)
	h1, h2 := hashOf("1"), hashOf("2")
	if err := db.CompareAndSwap("refs/heads/main", h1, "", "create"); err != nil {
		t.Fatalf("CAS create: %v", err)
	}
	if err := db.CompareAndSwap("refs/heads/main", h2, object.SHA1.ZeroHash(), ""); !errors.Is(err, giterr.ErrCASMismatch) {
		t.Fatalf("CAS on existing with zero old = %v", err)
	}
	if err := db.CompareAndSwap("refs/heads/main", h2, h2, ""); !errors.Is(err, giterr.ErrCASMismatch) {
		t.Fatalf("stale CAS = %v", err)
	}
	if err := db.CompareAndSwap("refs/heads/main", h2, h1, "advance"); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if got, _ := db.ResolveName("refs/heads/main"); got != h2 {
		t.Fatalf("after CAS = %s", got)
	}
}

func TestReflogRecordsUpdatesNewestFirst(t *testing.T) {
	db := testDB(t)
	h1, h2 := hashOf("1"), hashOf("2")
	db.CreateSymbolic(HEAD, "refs/heads/main", false, "")
	db.Create("refs/heads/main", h1, false, "commit (initial): one")
	db.SetTarget("refs/heads/main", h2, "commit: two")

	entries, err := db.Reflog("refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Old != h1 || entries[0].New != h2 || entries[0].Message != "commit: two" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if !entries[1].Old.IsZero() || entries[1].New != h1 {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
	if entries[0].Committer.Email != "test@example.com" {
		t.Fatalf("committer = %+v", entries[0].Committer)
	}

	headLog, err := db.Reflog(HEAD)
	if err != nil {
		t.Fatal(err)
	}
	if len(headLog) != 2 || headLog[0].New != h2 {
		t.Fatalf("HEAD log = %+v", headLog)
	}

	raw, err := os.ReadFile(filepath.Join(db.gitDir, "logs", "refs", "heads", "main"))
	if err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(string(raw), "\n", 2)[0]
	want := object.SHA1.ZeroHash().String() + " " + h1.String() + " Test <test@example.com> 1700000000 +0000\tcommit (initial): one"
	if first != want {
		t.Fatalf("log line = %q\nwant      %q", first, want)
	}
}

func TestReflogPolicy(t *testing.T) {
	db := testDB(t)
	db.Create("refs/tags/v1", hashOf("1"), false, "tag")
	if db.HasLog("refs/tags/v1") {
		t.Fatal("tags are not logged by default")
	}
	if err := db.EnsureLog("refs/tags/v1"); err != nil {
		t.Fatal(err)
	}
	db.Create("refs/tags/v1", hashOf("2"), true, "retag")
	entries, _ := db.Reflog("refs/tags/v1")
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 after EnsureLog", len(entries))
	}

	quiet := New(t.TempDir(), Options{})
	quiet.Create("refs/heads/main", hashOf("1"), false, "x")
	if quiet.HasLog("refs/heads/main") {
		t.Fatal("logged with logAllRefUpdates off")
	}
}

func TestRenamePreservesReflog(t *testing.T) {
	db := testDB(t)
	h1, h2 := hashOf("1"), hashOf("2")
	db.Create("refs/heads/old", h1, false, "one")
	db.SetTarget("refs/heads/old", h2, "two")
	db.CreateSymbolic(HEAD, "refs/heads/old", false, "")

	if _, err := db.Rename("refs/heads/old", "refs/heads/new", false, "renamed"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if db.Exists("refs/heads/old") || db.HasLog("refs/heads/old") {
		t.Fatal("old name still present")
	}
	if !db.HasLog("refs/heads/new") {
		t.Fatal("reflog not moved")
	}
	entries, _ := db.Reflog("refs/heads/new")
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[1].Message != "two" || entries[2].Message != "one" {
		t.Fatalf("prior entries lost: %+v", entries)
	}
	head, _ := db.Lookup(HEAD)
	if head.Symbolic != "refs/heads/new" {
		t.Fatalf("HEAD not repointed: %+v", head)
	}

	db.Create("refs/heads/taken", h1, false, "")
	if _, err := db.Rename("refs/heads/new", "refs/heads/taken", false, ""); !errors.Is(err, giterr.ErrAlreadyExists) {
		t.Fatalf("rename onto existing = %v", err)
	}
	if _, err := db.Rename("refs/heads/new", "refs/heads/new/nested", false, ""); err != nil {
		t.Fatalf("rename into own subdirectory: %v", err)
	}
}

func TestDeleteRemovesLooseAndPacked(t *testing.T) {
	db := testDB(t)
	db.Create("refs/heads/gone/deep", hashOf("1"), false, "x")
	if err := db.Pack(); err != nil {
		t.Fatal(err)
	}
	db.Create("refs/heads/gone/deep", hashOf("2"), true, "y")
	if err := db.Delete("refs/heads/gone/deep"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if db.Exists("refs/heads/gone/deep") {
		t.Fatal("packed copy resurfaced after delete")
	}
	if db.HasLog("refs/heads/gone/deep") {
		t.Fatal("reflog survived delete")
	}
	if _, err := os.Stat(filepath.Join(db.gitDir, "refs", "heads", "gone")); !os.IsNotExist(err) {
		t.Fatalf("empty directory left behind: %v", err)
	}
	if err := db.Delete("refs/heads/gone/deep"); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
}

func TestPackKeepsLookupResults(t *testing.T) {
	db := testDB(t)
	db.Create("refs/heads/main", hashOf("main"), false, "")
	db.Create("refs/heads/topic", hashOf("topic"), false, "")
	db.Create("refs/tags/v1", hashOf("tag"), false, "")
	db.CreateSymbolic("refs/remotes/origin/HEAD", "refs/remotes/origin/main", false, "")
	db.peeler = func(h object.Hash) (object.Hash, error) { return hashOf("peeled"), nil }

	before, err := db.List("refs/")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Pack(); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	after, err := db.List("refs/")
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("List changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if *before[i] != *after[i] {
			t.Fatalf("ref %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	if _, err := os.Stat(filepath.Join(db.gitDir, "refs", "heads", "main")); !os.IsNotExist(err) {
		t.Fatalf("loose ref not pruned: %v", err)
	}
	if _, err := os.Stat(filepath.Join(db.gitDir, "refs", "remotes", "origin", "HEAD")); err != nil {
		t.Fatalf("symbolic ref should stay loose: %v", err)
	}
	packed, err := os.ReadFile(filepath.Join(db.gitDir, "packed-refs"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(packed), "^"+hashOf("peeled").String()) {
		t.Fatalf("peeled line missing:\n%s", packed)
	}

	// Loose updates shadow packed values.
	db.SetTarget("refs/heads/main", hashOf("new"), "")
	if got, _ := db.ResolveName("refs/heads/main"); got != hashOf("new") {
		t.Fatalf("loose override = %s", got)
	}
}

func TestPackedDeletesDoNotLoseUpdates(t *testing.T) {
	db := testDB(t)
	var names []string
	for i := range 20 {
		name := fmt.Sprintf("refs/heads/b%02d", i)
		names = append(names, name)
		if _, err := db.Create(name, hashOf(name), false, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Pack(); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	// A loose ref keeps refs/heads from being pruned mid-test.
	if _, err := db.Create("refs/heads/keep", hashOf("keep"), false, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for _, name := range names[:10] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Delete(name)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}

	packed, err := db.readPacked()
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) != 10 {
		t.Fatalf("packed-refs holds %d refs, want 10", len(packed))
	}
	for i, e := range packed {
		if e.name != names[10+i] {
			t.Fatalf("packed[%d] = %s, want %s", i, e.name, names[10+i])
		}
	}
}

func TestPackWaitsForPackedRefsLock(t *testing.T) {
	db := testDB(t)
	db.Create("refs/heads/main", hashOf("main"), false, "")
	held, err := lockfile.Acquire(db.packedPath(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Rollback()

	if err := db.Pack(); !errors.Is(err, giterr.ErrLocked) {
		t.Fatalf("Pack = %v, want locked", err)
	}
	if _, err := os.Stat(filepath.Join(db.gitDir, "refs", "heads", "main")); err != nil {
		t.Fatalf("loose ref pruned without packing: %v", err)
	}
	if _, err := os.Stat(db.packedPath()); !os.IsNotExist(err) {
		t.Fatalf("packed-refs written under a foreign lock: %v", err)
	}
}

func TestPackedHeaderClaimsOnlyWhatWasPeeled(t *testing.T) {
	header := func(db *DB) string {
		t.Helper()
		data, err := os.ReadFile(db.packedPath())
		if err != nil {
			t.Fatal(err)
		}
		line, _, _ := strings.Cut(string(data), "\n")
		return line + "\n"
	}

	plain := testDB(t)
	plain.Create("refs/tags/v1", hashOf("tag"), false, "")
	if err := plain.Pack(); err != nil {
		t.Fatal(err)
	}
	if got := header(plain); got != packedHeaderSorted {
		t.Fatalf("header without peeler = %q", got)
	}

	peeling := testDB(t)
	peeling.peeler = func(h object.Hash) (object.Hash, error) {
		if h == hashOf("tag") {
			return hashOf("commit"), nil
		}
		return h, nil
	}
	peeling.Create("refs/heads/main", hashOf("main"), false, "")
	peeling.Create("refs/tags/v1", hashOf("tag"), false, "")
	if err := peeling.Pack(); err != nil {
		t.Fatal(err)
	}
	if got := header(peeling); got != packedHeaderPeeled {
		t.Fatalf("header with peeler = %q", got)
	}
	packed, _ := peeling.readPacked()
	if len(packed) != 2 || packed[0].peeled != "" || packed[1].peeled != hashOf("commit") {
		t.Fatalf("packed = %+v", packed)
	}

	failing := testDB(t)
	failing.peeler = func(object.Hash) (object.Hash, error) { return "", giterr.ErrNotFound }
	failing.Create("refs/tags/v1", hashOf("tag"), false, "")
	if err := failing.Pack(); err != nil {
		t.Fatal(err)
	}
	if got := header(failing); got != packedHeaderSorted {
		t.Fatalf("header after failed peel = %q", got)
	}
}

func TestListAndGlob(t *testing.T) {
	db := testDB(t)
	for _, name := range []string{"refs/heads/main", "refs/heads/feature/a", "refs/tags/v1", "refs/remotes/origin/main"} {
		if _, err := db.Create(name, hashOf(name), false, ""); err != nil {
			t.Fatal(err)
		}
	}
	heads, err := db.List(HeadsPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(heads) != 2 || heads[0].Name != "refs/heads/feature/a" || heads[1].Name != "refs/heads/main" {
		t.Fatalf("List = %+v", heads)
	}
	matched, err := db.Glob("refs/*/main")
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 2 {
		t.Fatalf("Glob = %+v", matched)
	}
}

func TestDropReflogEntry(t *testing.T) {
	db := testDB(t)
	h1, h2, h3 := hashOf("1"), hashOf("2"), hashOf("3")
	db.Create("refs/heads/main", h1, false, "a")
	db.SetTarget("refs/heads/main", h2, "b")
	db.SetTarget("refs/heads/main", h3, "c")

	if err := db.DropReflogEntry("refs/heads/main", 1, true); err != nil {
		t.Fatal(err)
	}
	entries, _ := db.Reflog("refs/heads/main")
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Message != "c" || entries[0].Old != h1 {
		t.Fatalf("rewritten entry = %+v", entries[0])
	}
	if err := db.DropReflogEntry("refs/heads/main", 5, false); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("out of range = %v", err)
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("main")
	if got[0] != "main" || got[3] != "refs/heads/main" {
		t.Fatalf("Candidates = %v", got)
	}
	if ShortName("refs/heads/feature/x") != "feature/x" {
		t.Fatalf("ShortName = %q", ShortName("refs/heads/feature/x"))
	}
}

func TestReflogFailureKeepsRefUpdate(t *testing.T) {
	db := testDB(t)
	// A directory where the log file should be makes the append fail.
	if err := os.MkdirAll(filepath.Join(db.gitDir, "logs", "refs", "heads", "main", "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := db.Create("refs/heads/main", hashOf("1"), false, "create")
	if !errors.Is(err, ErrReflogAppendFailed) {
		t.Fatalf("Create = %v, want reflog failure", err)
	}
	var rerr *ReflogError
	if !errors.As(err, &rerr) || rerr.NewHash != hashOf("1") {
		t.Fatalf("error = %#v", err)
	}
	if got, _ := db.ResolveName("refs/heads/main"); got != hashOf("1") {
		t.Fatalf("ref not updated: %s", got)
	}
}
