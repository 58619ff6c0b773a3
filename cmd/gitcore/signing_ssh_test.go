package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

// writeSSHKey generates an ed25519 key and writes it in OpenSSH format,
// returning the private key path and an allowed-signers file for it.
func writeSSHKey(t *testing.T, dir, name string) (string, string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "test key")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	keyPath := filepath.Join(dir, name)
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	allowedPath := keyPath + ".allowed"
	content := "# trusted\n\n" + string(ssh.MarshalAuthorizedKey(sshPub))
	if err := os.WriteFile(allowedPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write allowed signers: %v", err)
	}
	return keyPath, allowedPath
}

func TestCommitCmd_SignAndVerify(t *testing.T) {
	setupCLIRepo(t)
	keys := t.TempDir()
	keyPath, allowed := writeSSHKey(t, keys, "id_ed25519")
	_, otherAllowed := writeSSHKey(t, keys, "id_other")

	writeFile(t, "a.txt", "a\n")
	mustRun(t, newAddCmd(newApp()), "a.txt")
	mustRun(t, newCommitCmd(newApp()), "-S", "--signing-key", keyPath, "-m", "signed")

	raw := mustRun(t, newCatFileCmd(newApp()), "commit", "HEAD")
	if !strings.Contains(raw, "gpgsig -----BEGIN SSH SIGNATURE-----") {
		t.Fatalf("commit has no SSH signature header:\n%s", raw)
	}

	out := mustRun(t, newVerifyCommitCmd(newApp()), "--allowed-signers", allowed, "HEAD")
	if !strings.HasPrefix(out, "Good signature on ") || !strings.Contains(out, "ssh-ed25519 key SHA256:") {
		t.Fatalf("verify-commit output = %q", out)
	}
	if _, err := runCmd(t, newVerifyCommitCmd(newApp()), "--allowed-signers", otherAllowed, "HEAD"); err == nil {
		t.Fatalf("verify-commit trusted a key outside the allowed set")
	}

	writeFile(t, "a.txt", "b\n")
	mustRun(t, newAddCmd(newApp()), "a.txt")
	mustRun(t, newCommitCmd(newApp()), "-m", "unsigned")
	if _, err := runCmd(t, newVerifyCommitCmd(newApp()), "--allowed-signers", allowed, "HEAD"); err == nil {
		t.Fatalf("verify-commit accepted an unsigned commit")
	}
}

func TestCommitCmd_SignsFromAppSettings(t *testing.T) {
	setupCLIRepo(t)
	keyPath, allowed := writeSSHKey(t, t.TempDir(), "id_ed25519")

	a := newApp()
	a.settings.Signing.Sign = true
	a.settings.Signing.Key = keyPath
	a.settings.Signing.AllowedSigners = []string{allowed}

	writeFile(t, "a.txt", "a\n")
	mustRun(t, newAddCmd(a), "a.txt")
	mustRun(t, newCommitCmd(a), "-m", "signed by settings")
	if out := mustRun(t, newVerifyCommitCmd(a), "HEAD"); !strings.HasPrefix(out, "Good signature on ") {
		t.Fatalf("verify-commit output = %q", out)
	}

	// Another app built from defaults neither signs nor trusts the key.
	writeFile(t, "a.txt", "b\n")
	mustRun(t, newAddCmd(newApp()), "a.txt")
	mustRun(t, newCommitCmd(newApp()), "-m", "unsigned")
	if raw := mustRun(t, newCatFileCmd(newApp()), "commit", "HEAD"); strings.Contains(raw, "gpgsig") {
		t.Fatalf("default app signed a commit:\n%s", raw)
	}
}

func TestLoadAllowedSigners_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed")
	if err := os.WriteFile(path, []byte("not a key\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := loadAllowedSigners([]string{path}); err == nil {
		t.Fatalf("loadAllowedSigners accepted garbage")
	}
}

func TestExpandUserPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandUserPath("~/.ssh/id")
	if err != nil {
		t.Fatalf("expandUserPath: %v", err)
	}
	if got != filepath.Join(home, ".ssh", "id") {
		t.Fatalf("expandUserPath = %q", got)
	}
	if got, _ := expandUserPath("/abs/key"); got != "/abs/key" {
		t.Fatalf("absolute path rewritten to %q", got)
	}
}
