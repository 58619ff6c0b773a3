package repo

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gitcore/pkg/giterr"
	"github.com/odvcencio/gitcore/pkg/object"
)

// SSH signatures use the SSHSIG container that ssh-keygen -Y sign writes
// and git verifies with gpg.format=ssh.
const (
	sshSigMagic     = "SSHSIG"
	sshSigVersion   = 1
	sshSigNamespace = "git"
	sshSigHash      = "sha512"
	sshSigBegin     = "-----BEGIN SSH SIGNATURE-----"
	sshSigEnd       = "-----END SSH SIGNATURE-----"
	sshSigLineWidth = 70
)

type sshSigBlob struct {
	Version   uint32
	PublicKey []byte
	Namespace string
	Reserved  string
	HashAlg   string
	Signature []byte
}

type sshSignedData struct {
	Namespace string
	Reserved  string
	HashAlg   string
	Hash      []byte
}

func sshMessageHash(alg string, payload []byte) ([]byte, error) {
	switch alg {
	case "sha512":
		sum := sha512.Sum512(payload)
		return sum[:], nil
	case "sha256":
		sum := sha256.Sum256(payload)
		return sum[:], nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
}

func sshSignedBytes(namespace, alg string, digest []byte) []byte {
	return append([]byte(sshSigMagic), ssh.Marshal(sshSignedData{
		Namespace: namespace,
		HashAlg:   alg,
		Hash:      digest,
	})...)
}

// NewSSHCommitSigner returns a CommitSigner producing an armored SSH
// signature in the "git" namespace. RSA keys sign with rsa-sha2-512.
func NewSSHCommitSigner(signer ssh.Signer) CommitSigner {
	return func(payload []byte) (string, error) {
		digest, err := sshMessageHash(sshSigHash, payload)
		if err != nil {
			return "", err
		}
		data := sshSignedBytes(sshSigNamespace, sshSigHash, digest)

		var sig *ssh.Signature
		if as, ok := signer.(ssh.AlgorithmSigner); ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
			sig, err = as.SignWithAlgorithm(rand.Reader, data, ssh.KeyAlgoRSASHA512)
		} else {
			sig, err = signer.Sign(rand.Reader, data)
		}
		if err != nil {
			return "", err
		}
		blob := append([]byte(sshSigMagic), ssh.Marshal(sshSigBlob{
			Version:   sshSigVersion,
			PublicKey: signer.PublicKey().Marshal(),
			Namespace: sshSigNamespace,
			HashAlg:   sshSigHash,
			Signature: ssh.Marshal(sig),
		})...)
		return armorSSHSignature(blob), nil
	}
}

func armorSSHSignature(blob []byte) string {
	enc := base64.StdEncoding.EncodeToString(blob)
	var b strings.Builder
	b.WriteString(sshSigBegin)
	b.WriteByte('\n')
	for len(enc) > sshSigLineWidth {
		b.WriteString(enc[:sshSigLineWidth])
		b.WriteByte('\n')
		enc = enc[sshSigLineWidth:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	b.WriteString(sshSigEnd)
	return b.String()
}

func dearmorSSHSignature(armored string) ([]byte, error) {
	armored = strings.TrimSpace(armored)
	if !strings.HasPrefix(armored, sshSigBegin) || !strings.HasSuffix(armored, sshSigEnd) {
		return nil, fmt.Errorf("not an SSH signature")
	}
	body := strings.TrimSuffix(strings.TrimPrefix(armored, sshSigBegin), sshSigEnd)
	body = strings.Join(strings.Fields(body), "")
	return base64.StdEncoding.DecodeString(body)
}

// VerifyCommitSignature checks the SSH signature of commit h. When
// allowed is non-empty the signing key must be one of them. It returns
// the key that made the signature.
func (r *Repo) VerifyCommitSignature(h object.Hash, allowed []ssh.PublicKey) (ssh.PublicKey, error) {
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	if c.GPGSig == "" {
		return nil, giterr.Newf("verify signature", string(h), giterr.ErrNotFound, "commit is not signed")
	}
	pub, err := verifySSHSignature(c.GPGSig, object.CommitSigningPayload(c))
	if err != nil {
		return nil, giterr.Newf("verify signature", string(h), giterr.ErrInvalidArgument, "%v", err)
	}
	if len(allowed) == 0 {
		return pub, nil
	}
	for _, k := range allowed {
		if bytes.Equal(k.Marshal(), pub.Marshal()) {
			return pub, nil
		}
	}
	return nil, giterr.Newf("verify signature", string(h), giterr.ErrInvalidArgument, "signed by untrusted key %s", ssh.FingerprintSHA256(pub))
}

func verifySSHSignature(armored string, payload []byte) (ssh.PublicKey, error) {
	raw, err := dearmorSSHSignature(armored)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, []byte(sshSigMagic)) {
		return nil, fmt.Errorf("missing %s preamble", sshSigMagic)
	}
	var blob sshSigBlob
	if err := ssh.Unmarshal(raw[len(sshSigMagic):], &blob); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if blob.Version != sshSigVersion {
		return nil, fmt.Errorf("unsupported signature version %d", blob.Version)
	}
	if blob.Namespace != sshSigNamespace {
		return nil, fmt.Errorf("signature namespace %q, want %q", blob.Namespace, sshSigNamespace)
	}
	pub, err := ssh.ParsePublicKey(blob.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(blob.Signature, &sig); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	digest, err := sshMessageHash(blob.HashAlg, payload)
	if err != nil {
		return nil, err
	}
	if err := pub.Verify(sshSignedBytes(blob.Namespace, blob.HashAlg, digest), &sig); err != nil {
		return nil, err
	}
	return pub, nil
}
