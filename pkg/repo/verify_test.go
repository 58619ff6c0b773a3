package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitcore/pkg/object"
)

func TestVerify_HealthyRepository(t *testing.T) {
	r := initRepo(t)
	commitFile(t, r, "a.txt", "a\n", "first\n")
	head := commitFile(t, r, "b.txt", "b\n", "second\n")
	if err := r.CreateBranch("side", head, false); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	report, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("report = %+v, want OK", report)
	}
	if report.Refs != 2 {
		t.Fatalf("Refs = %d, want 2", report.Refs)
	}
	// two commits, two trees, two blobs
	if report.Reachable != 6 || report.Checked != 6 || report.Dangling != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestVerify_ReportsMissingAndDangling(t *testing.T) {
	r := initRepo(t)
	commitFile(t, r, "a.txt", "a\n", "first\n")
	if _, err := r.Store.WriteBlob(&object.Blob{Data: []byte("orphan\n")}); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	blob := object.HashObject(object.SHA1, object.TypeBlob, []byte("a\n"))
	if err := os.Remove(filepath.Join(r.GitDir, "objects", string(blob[:2]), string(blob[2:]))); err != nil {
		t.Fatalf("remove blob: %v", err)
	}

	report, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.OK() {
		t.Fatalf("report OK despite missing blob")
	}
	if len(report.Missing) != 1 || report.Missing[0] != blob {
		t.Fatalf("Missing = %v, want [%s]", report.Missing, blob)
	}
	if report.Dangling != 1 {
		t.Fatalf("Dangling = %d, want 1", report.Dangling)
	}
}

func TestVerify_ReportsCorruptObject(t *testing.T) {
	r := initRepo(t)
	commitFile(t, r, "a.txt", "a\n", "first\n")
	blob, err := r.Store.WriteBlob(&object.Blob{Data: []byte("loose\n")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	path := filepath.Join(r.GitDir, "objects", string(blob[:2]), string(blob[2:]))
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte("not zlib"), 0o644); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}

	report, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Corrupt) != 1 || report.Corrupt[0] != blob {
		t.Fatalf("Corrupt = %v, want [%s]", report.Corrupt, blob)
	}
	if report.OK() {
		t.Fatalf("report OK despite corruption")
	}
}
