package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/repository"
)

func newTestSQLiteCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCatalog(t *testing.T) {
	runCatalogContract(t, func(t *testing.T) repository.FileCatalog {
		return newTestSQLiteCatalog(t)
	})
}

func TestSQLiteCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	ctx := context.Background()

	c, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	rec := newRecord("persisted.txt", "text/plain", 9, baseTime)
	_, err = c.InsertIfDigestAbsent(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted.txt", got.OriginalFilename)
	assert.True(t, baseTime.Equal(got.CreatedAt))
}
