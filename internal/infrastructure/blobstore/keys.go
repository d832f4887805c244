// Package blobstore implements repository.BlobStore on the local
// filesystem and on S3-compatible object storage.
package blobstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	keyRandomBytes  = 16
	maxExtensionLen = 16
	tempPrefix      = ".upload-"
)

// NewStorageKey generates a fresh storage key: 128 random bits in hex
// followed by the sanitized extension of filename. The key never derives
// from client input other than the extension.
func NewStorageKey(filename string) (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate storage key: %w", err)
	}
	return hex.EncodeToString(buf) + sanitizeExtension(filename), nil
}

// sanitizeExtension keeps the extension of the base name when it consists
// only of ASCII letters and digits
func sanitizeExtension(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := filepath.Ext(base)
	if len(ext) <= 1 || len(ext) > maxExtensionLen+1 || ext == base {
		return ""
	}
	for _, r := range ext[1:] {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return ext
}

func validateKey(key string) error {
	if len(key) < 4 || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
