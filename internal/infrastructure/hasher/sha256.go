// Package hasher computes content digests used as the deduplication key.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

const bufferSize = 32 * 1024

// SHA256 streams content through SHA-256 and renders the digest as
// lowercase hex. Memory use is bounded by a fixed copy buffer.
type SHA256 struct{}

// New returns a SHA-256 content hasher
func New() *SHA256 {
	return &SHA256{}
}

// Hash consumes r to EOF and returns its digest and length. Any read
// failure is returned unchanged so callers can classify it.
func (SHA256) Hash(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, bufferSize))
	if err != nil {
		return "", n, err
	}
	return encode(h), n, nil
}

// Verify re-hashes r and reports whether it matches digest
func (s SHA256) Verify(r io.Reader, digest string) error {
	got, _, err := s.Hash(r)
	if err != nil {
		return err
	}
	if got != digest {
		return fmt.Errorf("digest mismatch: want %s, got %s", digest, got)
	}
	return nil
}

func encode(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
