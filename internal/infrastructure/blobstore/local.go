package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// LocalStore keeps blobs on the local filesystem, sharded by the first
// four characters of the storage key
type LocalStore struct {
	basePath string
}

var _ repository.BlobStore = (*LocalStore)(nil)

// NewLocalStore creates the base directory if needed
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// BasePath returns the storage root
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// Put writes r to a temp file in the shard directory, fsyncs it and hard
// links it to the final name. The link fails if the name exists, so an
// existing blob is never overwritten.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	target := s.getPath(key)
	if _, err := os.Lstat(target); err == nil {
		return 0, fmt.Errorf("%w: %s", repository.ErrBlobExists, key)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close blob %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", repository.ErrBlobExists, key)
		}
		return 0, fmt.Errorf("failed to commit blob %s: %w", key, err)
	}

	return n, nil
}

// Get opens the blob for reading; the caller closes it
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.getPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", repository.ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the blob if present
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.getPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Walk visits every committed blob. Only files at their shard path are
// reported, so temp files and anything else sharing the root (a catalog
// database, a spool directory) are never treated as blobs.
func (s *LocalStore) Walk(ctx context.Context, fn func(repository.BlobInfo) error) error {
	return filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil || rel == "." {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		if d.IsDir() {
			if len(parts) > 2 || len(d.Name()) != 2 {
				return filepath.SkipDir
			}
			return nil
		}
		if !isShardedKey(parts) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(repository.BlobInfo{
			Key:      d.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	})
}

// isShardedKey reports whether parts is <key[0:2]>/<key[2:4]>/<key>
func isShardedKey(parts []string) bool {
	if len(parts) != 3 {
		return false
	}
	key := parts[2]
	if validateKey(key) != nil {
		return false
	}
	return parts[0] == key[:2] && parts[1] == key[2:4]
}

// Ping verifies the storage root is a writable directory
func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("storage path not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.basePath)
	}

	probe, err := os.CreateTemp(s.basePath, ".health_check-*")
	if err != nil {
		return fmt.Errorf("cannot write to storage: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (s *LocalStore) getPath(key string) string {
	return filepath.Join(s.basePath, key[:2], key[2:4], key)
}
