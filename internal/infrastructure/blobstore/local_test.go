package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/repository"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalStore_PutGet(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	key, err := NewStorageKey("report.pdf")
	require.NoError(t, err)

	n, err := store.Put(ctx, key, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = os.Stat(filepath.Join(store.BasePath(), key[:2], key[2:4], key))
	assert.NoError(t, err)
}

func TestLocalStore_PutEmpty(t *testing.T) {
	store := newTestLocalStore(t)

	n, err := store.Put(context.Background(), "abcdef0123", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestLocalStore_NoOverwrite(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "abcdef0123", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = store.Put(ctx, "abcdef0123", strings.NewReader("second"))
	assert.ErrorIs(t, err, repository.ErrBlobExists)

	rc, err := store.Get(ctx, "abcdef0123")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "first", string(data))
}

func TestLocalStore_GetMissing(t *testing.T) {
	store := newTestLocalStore(t)

	_, err := store.Get(context.Background(), "deadbeef00")
	assert.ErrorIs(t, err, repository.ErrBlobNotFound)
}

func TestLocalStore_InvalidKey(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "ab", "../etc/passwd", ".hidden-key"} {
		_, err := store.Put(ctx, key, strings.NewReader("x"))
		assert.Error(t, err, key)
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "abcdef0123", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "abcdef0123"))
	_, err = store.Get(ctx, "abcdef0123")
	assert.ErrorIs(t, err, repository.ErrBlobNotFound)

	assert.NoError(t, store.Delete(ctx, "abcdef0123"))
}

func TestLocalStore_CancelledPutLeavesNothing(t *testing.T) {
	store := newTestLocalStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "abcdef0123", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)

	count := 0
	require.NoError(t, store.Walk(context.Background(), func(repository.BlobInfo) error {
		count++
		return nil
	}))
	assert.Zero(t, count)
}

func TestLocalStore_Walk(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	keys := map[string]string{
		"aaaa0001.txt": "one",
		"bbbb0002":     "two!",
		"aaab0003.png": "three",
	}
	for k, v := range keys {
		_, err := store.Put(ctx, k, strings.NewReader(v))
		require.NoError(t, err)
	}

	// a stray temp file from an interrupted write
	require.NoError(t, os.WriteFile(filepath.Join(store.BasePath(), "aa", "aa", tempPrefix+"123"), []byte("x"), 0o600))

	seen := map[string]int64{}
	require.NoError(t, store.Walk(ctx, func(info repository.BlobInfo) error {
		seen[info.Key] = info.Size
		assert.False(t, info.Modified.IsZero())
		return nil
	}))

	assert.Len(t, seen, len(keys))
	for k, v := range keys {
		assert.Equal(t, int64(len(v)), seen[k])
	}
}

func TestLocalStore_WalkIgnoresForeignFiles(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()
	root := store.BasePath()

	key, err := NewStorageKey("report.txt")
	require.NoError(t, err)
	_, err = store.Put(ctx, key, strings.NewReader("content"))
	require.NoError(t, err)

	// a catalog database and a spool directory sharing the root
	for _, name := range []string{"catalog.db", "catalog.db-wal", "catalog.db-shm"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("db"), 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tmp"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tmp", "ingest-x"), []byte("spool"), 0o600))

	// files in a shard directory that does not match their name
	require.NoError(t, os.WriteFile(filepath.Join(root, key[:2], key[2:4], "zzzz0001"), []byte("x"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ab", "cd", "ef"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ab", "cd", "ef", "abcdef01"), []byte("x"), 0o600))

	var seen []string
	require.NoError(t, store.Walk(ctx, func(info repository.BlobInfo) error {
		seen = append(seen, info.Key)
		return nil
	}))
	assert.Equal(t, []string{key}, seen)
}

func TestLocalStore_Ping(t *testing.T) {
	store := newTestLocalStore(t)
	assert.NoError(t, store.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(store.BasePath()))
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewStorageKey(t *testing.T) {
	tests := []struct {
		filename string
		suffix   string
	}{
		{"report.pdf", ".pdf"},
		{"Report_final.PDF", ".PDF"},
		{"archive.tar.gz", ".gz"},
		{"noext", ""},
		{".bashrc", ""},
		{"../../etc/passwd", ""},
		{`C:\docs\evil.exe`, ".exe"},
		{"weird.p$f", ""},
		{"long.abcdefghijklmnopq", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			key, err := NewStorageKey(tt.filename)
			require.NoError(t, err)
			assert.Len(t, key, 32+len(tt.suffix))
			assert.True(t, strings.HasSuffix(key, tt.suffix))
			assert.NoError(t, validateKey(key))
		})
	}

	a, _ := NewStorageKey("x.txt")
	b, _ := NewStorageKey("x.txt")
	assert.NotEqual(t, a, b)
}
