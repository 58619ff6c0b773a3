package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gitcore/pkg/repo"
)

// loadCommitSigner reads an SSH private key and returns a signer that
// writes SSHSIG commit signatures, plus the key path actually used.
func (a *app) loadCommitSigner(keyPath string) (repo.CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	a.logger.Debug("loaded signing key", "path", resolvedPath, "fingerprint", ssh.FingerprintSHA256(signer.PublicKey()))
	return repo.NewSSHCommitSigner(signer), resolvedPath, nil
}

// commitSigner returns the signer to use for a commit: one when -S was
// given or signing.sign is set, nil otherwise.
func (a *app) commitSigner(sign bool, keyPath string) (repo.CommitSigner, error) {
	if !sign && !a.settings.Signing.Sign {
		return nil, nil
	}
	if keyPath == "" {
		keyPath = a.settings.Signing.Key
	}
	signer, _, err := a.loadCommitSigner(keyPath)
	return signer, err
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		expanded, err := expandUserPath(path)
		if err != nil {
			return "", err
		}
		return expanded, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}

// loadAllowedSigners parses authorized_keys style files. Blank lines and
// # comments are skipped.
func loadAllowedSigners(paths []string) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	for _, p := range paths {
		expanded, err := expandUserPath(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("read allowed signers %q: %w", expanded, err)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for lineNo := 1; sc.Scan(); lineNo++ {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", expanded, lineNo, err)
			}
			keys = append(keys, key)
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
