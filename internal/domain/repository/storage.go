package repository

import (
	"context"
	"errors"
	"io"
	"time"
)

// StorageBackend defines the type of blob storage backend
type StorageBackend string

const (
	StorageBackendLocal StorageBackend = "local"
	StorageBackendS3    StorageBackend = "s3"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobExists   = errors.New("blob already exists")
)

// BlobInfo describes a stored blob
type BlobInfo struct {
	Key      string
	Size     int64
	Modified time.Time
}

// BlobStore persists raw content under opaque storage keys
type BlobStore interface {
	// Put writes the content under key and returns the number of bytes
	// written. It never overwrites: an existing key fails with ErrBlobExists.
	// The blob is not visible to Get until Put returns successfully.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Get opens the blob stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob; a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Walk calls fn for every stored blob
	Walk(ctx context.Context, fn func(BlobInfo) error) error

	// Ping checks that the backend is reachable and writable
	Ping(ctx context.Context) error
}
