package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/repository"
	"github.com/zots0127/uploadstore/internal/infrastructure/blobstore"
	"github.com/zots0127/uploadstore/internal/infrastructure/catalog"
	"github.com/zots0127/uploadstore/internal/infrastructure/hasher"
	"github.com/zots0127/uploadstore/internal/usecase"
)

func TestSweepUseCase_RemovesOldOrphansOnly(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()

	rec, err := env.ingest.Ingest(ctx, usecase.Upload{Body: strings.NewReader("kept"), Filename: "kept.txt"})
	require.NoError(t, err)

	_, err = env.blobs.Put(ctx, "0ld0rphan", strings.NewReader("old orphan"))
	require.NoError(t, err)
	_, err = env.blobs.Put(ctx, "fr3shorphan", strings.NewReader("in flight"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	for _, key := range []string{"0ld0rphan", rec.StorageKey} {
		path := filepath.Join(env.blobs.BasePath(), key[:2], key[2:4], key)
		require.NoError(t, os.Chtimes(path, past, past))
	}

	sweeper := usecase.NewSweepUseCase(env.cat, env.blobs, time.Hour, time.Hour, discardLogger())
	result := sweeper.RunOnce(ctx)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Errors)

	_, err = env.blobs.Get(ctx, "0ld0rphan")
	assert.ErrorIs(t, err, repository.ErrBlobNotFound)

	for _, key := range []string{"fr3shorphan", rec.StorageKey} {
		rc, err := env.blobs.Get(ctx, key)
		require.NoError(t, err, key)
		rc.Close()
	}
}

// Catalog database and spool directory live under the blob root, as in
// the shipped configuration
func TestSweepUseCase_SharedStorageRoot(t *testing.T) {
	root := t.TempDir()
	spoolDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(spoolDir, 0o750))
	ctx := context.Background()

	cat, err := catalog.NewSQLiteCatalog(filepath.Join(root, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	blobs, err := blobstore.NewLocalStore(root)
	require.NoError(t, err)

	ingest := usecase.NewIngestUseCase(cat, blobs, hasher.New(), discardLogger(), usecase.WithTempDir(spoolDir))
	rec, err := ingest.Ingest(ctx, usecase.Upload{Body: strings.NewReader("kept"), Filename: "kept.txt"})
	require.NoError(t, err)

	stale := filepath.Join(spoolDir, "ingest-123456")
	fresh := filepath.Join(spoolDir, "ingest-654321")
	other := filepath.Join(spoolDir, "notes.txt")
	for _, path := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(path, []byte("partial"), 0o600))
	}

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	sweeper := usecase.NewSweepUseCase(cat, blobs, time.Hour, time.Hour, discardLogger(), usecase.WithSpoolDir(spoolDir))
	result := sweeper.RunOnce(ctx)

	assert.Equal(t, 1, result.Scanned)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, 1, result.SpoolRemoved)
	assert.Zero(t, result.Errors)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
	assert.FileExists(t, filepath.Join(root, "catalog.db"))

	rc, err := blobs.Get(ctx, rec.StorageKey)
	require.NoError(t, err)
	rc.Close()
}

func TestSweepUseCase_StartStop(t *testing.T) {
	env := newIngestEnv(t)

	_, err := env.blobs.Put(context.Background(), "0rphan01", strings.NewReader("x"))
	require.NoError(t, err)

	sweeper := usecase.NewSweepUseCase(env.cat, env.blobs, time.Hour, 0, discardLogger())
	sweeper.Start(context.Background())

	assert.Eventually(t, func() bool {
		_, err := env.blobs.Get(context.Background(), "0rphan01")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)

	sweeper.Stop()
}
