package repo

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

func newTestSSHSigner(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	return signer
}

func TestSSHCommitSignature_RoundTrip(t *testing.T) {
	r := initRepo(t)
	signer := newTestSSHSigner(t)
	writeWorkFile(t, r, "a.txt", "signed\n")
	if err := r.Add([]string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h, err := r.CommitWithSigner("signed commit\n", NewSSHCommitSigner(signer))
	if err != nil {
		t.Fatalf("CommitWithSigner: %v", err)
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if !strings.HasPrefix(c.GPGSig, sshSigBegin) {
		t.Fatalf("gpgsig = %q", c.GPGSig)
	}

	pub, err := r.VerifyCommitSignature(h, nil)
	if err != nil {
		t.Fatalf("VerifyCommitSignature: %v", err)
	}
	if string(pub.Marshal()) != string(signer.PublicKey().Marshal()) {
		t.Fatalf("verified with unexpected key %s", ssh.FingerprintSHA256(pub))
	}
	if _, err := r.VerifyCommitSignature(h, []ssh.PublicKey{signer.PublicKey()}); err != nil {
		t.Fatalf("VerifyCommitSignature(allowed): %v", err)
	}

	other := newTestSSHSigner(t)
	if _, err := r.VerifyCommitSignature(h, []ssh.PublicKey{other.PublicKey()}); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("untrusted key err = %v, want invalid argument", err)
	}
}

func TestVerifyCommitSignature_DetectsTampering(t *testing.T) {
	r := initRepo(t)
	signer := newTestSSHSigner(t)
	writeWorkFile(t, r, "a.txt", "a\n")
	if err := r.Add([]string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.CommitWithSigner("original\n", NewSSHCommitSigner(signer))
	if err != nil {
		t.Fatalf("CommitWithSigner: %v", err)
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}

	c.Message = "forged\n"
	forged, err := r.Store.WriteCommit(c)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if _, err := r.VerifyCommitSignature(forged, nil); !errors.Is(err, giterr.ErrInvalidArgument) {
		t.Fatalf("tampered commit err = %v, want invalid argument", err)
	}
}

func TestVerifyCommitSignature_Unsigned(t *testing.T) {
	r := initRepo(t)
	h := commitFile(t, r, "a.txt", "a\n", "plain\n")
	if _, err := r.VerifyCommitSignature(h, nil); !errors.Is(err, giterr.ErrNotFound) {
		t.Fatalf("unsigned commit err = %v, want not found", err)
	}
}

func TestSSHSignatureArmor(t *testing.T) {
	blob := make([]byte, 300)
	for i := range blob {
		blob[i] = byte(i)
	}
	armored := armorSSHSignature(blob)
	for _, line := range strings.Split(armored, "\n") {
		if len(line) > sshSigLineWidth && !strings.HasPrefix(line, "-----") {
			t.Fatalf("armor line too long: %d", len(line))
		}
	}
	got, err := dearmorSSHSignature("  " + armored + "\n")
	if err != nil {
		t.Fatalf("dearmor: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("dearmor changed the payload")
	}
	if _, err := dearmorSSHSignature("garbage"); err == nil {
		t.Fatalf("dearmor accepted garbage")
	}
}

func TestSSHMessageHash_RejectsUnknownAlgorithm(t *testing.T) {
	if _, err := sshMessageHash("md5", []byte("x")); err == nil {
		t.Fatalf("md5 accepted")
	}
	sum, err := sshMessageHash("sha256", []byte("x"))
	if err != nil || len(sum) != 32 {
		t.Fatalf("sha256 = %d bytes, %v", len(sum), err)
	}
}
