package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/pjbgf/sha1cd"

	"github.com/odvcencio/gitcore/pkg/giterr"
)

// Hash is the lowercase hex encoding of an object digest: 40 characters
// for SHA-1 repositories, 64 for SHA-256 ones. Because the encoding is
// fixed-width lowercase hex, string order equals raw byte order.
type Hash string

// HashAlgorithm selects the digest used for object ids and file checksums.
type HashAlgorithm string

const (
	SHA1   HashAlgorithm = "sha1"
	SHA256 HashAlgorithm = "sha256"
)

const sha1Size = 20

// MinPrefixLen is the shortest hex prefix accepted for abbreviated lookups.
const MinPrefixLen = 4

// ParseHashAlgorithm maps a config value (extensions.objectformat) to an
// algorithm. The empty string selects SHA-1.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	default:
		return "", giterr.Newf("parse object format", s, giterr.ErrInvalidArgument, "unknown object format")
	}
}

// Size returns the raw digest width in bytes.
func (a HashAlgorithm) Size() int {
	if a == SHA256 {
		return sha256.Size
	}
	return sha1Size
}

// HexSize returns the width of a Hash in hex characters.
func (a HashAlgorithm) HexSize() int { return a.Size() * 2 }

// New returns a fresh digest state. SHA-1 uses the collision-detecting
// implementation.
func (a HashAlgorithm) New() hash.Hash {
	if a == SHA256 {
		return sha256.New()
	}
	return sha1cd.New()
}

// ZeroHash is the all-zero id used as "no object" in reflogs.
func (a HashAlgorithm) ZeroHash() Hash {
	return Hash(strings.Repeat("0", a.HexSize()))
}

// EmptyTree returns the id of the tree with no entries.
func (a HashAlgorithm) EmptyTree() Hash {
	return HashObject(a, TypeTree, nil)
}

// Sum hashes raw bytes without an object envelope.
func (a HashAlgorithm) Sum(data []byte) []byte {
	h := a.New()
	h.Write(data)
	return h.Sum(nil)
}

// HashObject computes the id of an object: the digest of the envelope
// "type len\0" followed by the payload.
func HashObject(algo HashAlgorithm, objType ObjectType, data []byte) Hash {
	h := algo.New()
	h.Write([]byte(objType))
	h.Write([]byte{' '})
	h.Write([]byte(strconv.Itoa(len(data))))
	h.Write([]byte{0})
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseHash validates a full-length hex id of either width and returns it
// in canonical lowercase form.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != SHA1.HexSize() && len(s) != SHA256.HexSize() {
		return "", giterr.Newf("parse hash", s, giterr.ErrInvalidArgument, "length %d", len(s))
	}
	if !isHex(s) {
		return "", giterr.Newf("parse hash", s, giterr.ErrInvalidArgument, "not hexadecimal")
	}
	return Hash(s), nil
}

// HashFromBytes encodes a raw digest.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != SHA1.Size() && len(b) != SHA256.Size() {
		return "", giterr.Newf("hash from bytes", "", giterr.ErrInvalidArgument, "length %d", len(b))
	}
	return Hash(hex.EncodeToString(b)), nil
}

// Bytes returns the raw digest. An invalid Hash yields nil.
func (h Hash) Bytes() []byte {
	b, err := hex.DecodeString(string(h))
	if err != nil {
		return nil
	}
	return b
}

func (h Hash) String() string { return string(h) }

// IsZero reports whether h is empty or all zeros.
func (h Hash) IsZero() bool {
	return strings.Trim(string(h), "0") == ""
}

// Short returns the first n hex characters of h.
func (h Hash) Short(n int) string {
	if n <= 0 || n >= len(h) {
		return string(h)
	}
	return string(h[:n])
}

// Compare orders hashes by their raw bytes.
func (h Hash) Compare(other Hash) int {
	return strings.Compare(string(h), string(other))
}

// Algorithm infers the digest algorithm from the id width.
func (h Hash) Algorithm() (HashAlgorithm, error) {
	switch len(h) {
	case SHA1.HexSize():
		return SHA1, nil
	case SHA256.HexSize():
		return SHA256, nil
	}
	return "", fmt.Errorf("hash %q: %w", string(h), giterr.ErrInvalidArgument)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsHexPrefix reports whether s is a plausible lowercase-or-uppercase hex
// abbreviation.
func IsHexPrefix(s string) bool {
	return s != "" && isHex(strings.ToLower(s))
}
