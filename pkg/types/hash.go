// Package types defines the value types shared by the version-control
// core: content hashes, object ids, the stored payload kinds and the
// canonical binary encoding of trees and commits.
//
// The encoding is deliberately hand-rolled and deterministic: every stored
// payload must serialize to exactly one byte sequence so that content
// addressing holds (hash(X) == hash(Y) iff X and Y are the same value).
package types

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// HashSize is the width in bytes of every digest used by the store.
const HashSize = sha512.Size

// Hash is a fixed-width SHA-512 digest. Blobs, trees and commits are
// addressed solely by their Hash.
type Hash [HashSize]byte

// HashBytes digests the given bytes.
func HashBytes(data []byte) Hash {
	return sha512.Sum512(data)
}

// ParseHash decodes a lowercase hex digest as produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return HashFromBytes(raw)
}

// HashFromBytes converts a raw digest slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns an abbreviated digest for log output.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:6])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}
