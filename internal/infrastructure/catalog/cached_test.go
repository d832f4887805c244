package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// countingCatalog records how often lookups reach the backing store
type countingCatalog struct {
	repository.FileCatalog
	gets    int
	digests int
}

func (c *countingCatalog) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	c.gets++
	return c.FileCatalog.Get(ctx, id)
}

func (c *countingCatalog) FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error) {
	c.digests++
	return c.FileCatalog.FindByDigest(ctx, digest)
}

func TestCachedCatalog(t *testing.T) {
	runCatalogContract(t, func(t *testing.T) repository.FileCatalog {
		return NewCachedCatalog(newTestSQLiteCatalog(t), 128, time.Minute)
	})
}

func TestCachedCatalog_ServesHitsFromMemory(t *testing.T) {
	backing := &countingCatalog{FileCatalog: newTestSQLiteCatalog(t)}
	c := NewCachedCatalog(backing, 16, time.Minute)
	ctx := context.Background()

	rec := newRecord("cached.txt", "text/plain", 6, baseTime)
	_, err := backing.InsertIfDigestAbsent(ctx, rec)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	}
	assert.Equal(t, 1, backing.gets)

	_, err = c.FindByDigest(ctx, rec.Digest)
	require.NoError(t, err)
	assert.Equal(t, 0, backing.digests)
}

func TestCachedCatalog_DoesNotCacheMisses(t *testing.T) {
	backing := &countingCatalog{FileCatalog: newTestSQLiteCatalog(t)}
	c := NewCachedCatalog(backing, 16, time.Minute)
	ctx := context.Background()

	rec := newRecord("late.txt", "text/plain", 4, baseTime)

	_, err := c.FindByDigest(ctx, rec.Digest)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)

	_, err = backing.InsertIfDigestAbsent(ctx, rec)
	require.NoError(t, err)

	got, err := c.FindByDigest(ctx, rec.Digest)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, 2, backing.digests)
}

func TestCachedCatalog_ReturnsCopies(t *testing.T) {
	c := NewCachedCatalog(newTestSQLiteCatalog(t), 16, time.Minute)
	ctx := context.Background()

	rec := newRecord("immutable.txt", "text/plain", 4, baseTime)
	_, err := c.InsertIfDigestAbsent(ctx, rec)
	require.NoError(t, err)

	got, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	got.OriginalFilename = "mutated"

	again, err := c.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "immutable.txt", again.OriginalFilename)
}
