package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func digestOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newRecord(name, contentType string, size int64, at time.Time) *entities.FileRecord {
	id := uuid.NewString()
	return &entities.FileRecord{
		ID:               id,
		StorageKey:       "key-" + id,
		OriginalFilename: name,
		ContentType:      contentType,
		Size:             size,
		Digest:           digestOf(id),
		CreatedAt:        at,
	}
}

func int64Ptr(v int64) *int64 { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func names(records []*entities.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.OriginalFilename
	}
	return out
}

// runCatalogContract exercises behavior every FileCatalog must share
func runCatalogContract(t *testing.T, newCatalog func(t *testing.T) repository.FileCatalog) {
	t.Run("insert and get", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()
		rec := newRecord("report.pdf", "application/pdf", 42, baseTime.Add(123456*time.Microsecond))

		res, err := c.InsertIfDigestAbsent(ctx, rec)
		require.NoError(t, err)
		assert.True(t, res.Inserted)

		got, err := c.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.StorageKey, got.StorageKey)
		assert.Equal(t, rec.Digest, got.Digest)
		assert.Equal(t, rec.Size, got.Size)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		byDigest, err := c.FindByDigest(ctx, rec.Digest)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byDigest.ID)

		has, err := c.HasStorageKey(ctx, rec.StorageKey)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = c.HasStorageKey(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("not found", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		_, err := c.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrRecordNotFound)

		_, err = c.FindByDigest(ctx, digestOf("missing"))
		assert.ErrorIs(t, err, repository.ErrRecordNotFound)
	})

	t.Run("duplicate digest returns winner", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()
		first := newRecord("a.txt", "text/plain", 3, baseTime)
		second := newRecord("b.txt", "text/plain", 3, baseTime.Add(time.Second))
		second.Digest = first.Digest

		_, err := c.InsertIfDigestAbsent(ctx, first)
		require.NoError(t, err)

		res, err := c.InsertIfDigestAbsent(ctx, second)
		require.NoError(t, err)
		assert.False(t, res.Inserted)
		assert.Equal(t, first.ID, res.Record.ID)

		_, err = c.Get(ctx, second.ID)
		assert.ErrorIs(t, err, repository.ErrRecordNotFound)
	})

	t.Run("concurrent inserts of one digest", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()
		digest := digestOf("shared content")

		const workers = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
			winners  = map[string]struct{}{}
			errs     []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := newRecord(fmt.Sprintf("copy-%d.bin", i), "application/octet-stream", 14, baseTime)
				rec.Digest = digest
				res, err := c.InsertIfDigestAbsent(ctx, rec)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if res.Inserted {
					inserted++
				}
				winners[res.Record.ID] = struct{}{}
			}(i)
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 1, inserted)
		assert.Len(t, winners, 1)

		all, err := c.List(ctx, entities.FileFilter{Digest: digest})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("filters", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		records := []*entities.FileRecord{
			newRecord("report.pdf", "application/pdf", 10, baseTime),
			newRecord("Report_final.PDF", "application/pdf", 500, baseTime.Add(time.Hour)),
			newRecord("image.png", "image/png", 50, baseTime.Add(2*time.Hour)),
			newRecord("100%_done.txt", "text/plain", 7, baseTime.Add(3*time.Hour)),
		}
		for _, r := range records {
			_, err := c.InsertIfDigestAbsent(ctx, r)
			require.NoError(t, err)
		}

		tests := []struct {
			name     string
			filter   entities.FileFilter
			expected []string
		}{
			{
				name:     "no filter newest first",
				filter:   entities.FileFilter{},
				expected: []string{"100%_done.txt", "image.png", "Report_final.PDF", "report.pdf"},
			},
			{
				name:     "filename contains is case-insensitive",
				filter:   entities.FileFilter{FilenameContains: "report"},
				expected: []string{"Report_final.PDF", "report.pdf"},
			},
			{
				name:     "content type contains",
				filter:   entities.FileFilter{ContentTypeContains: "PDF"},
				expected: []string{"Report_final.PDF", "report.pdf"},
			},
			{
				name:     "like metacharacters match literally",
				filter:   entities.FileFilter{FilenameContains: "%_"},
				expected: []string{"100%_done.txt"},
			},
			{
				name:     "underscore is not a wildcard",
				filter:   entities.FileFilter{FilenameContains: "t_p"},
				expected: []string{},
			},
			{
				name:     "exact size",
				filter:   entities.FileFilter{Size: int64Ptr(50)},
				expected: []string{"image.png"},
			},
			{
				name:     "size range inclusive",
				filter:   entities.FileFilter{MinSize: int64Ptr(10), MaxSize: int64Ptr(50)},
				expected: []string{"image.png", "report.pdf"},
			},
			{
				name:     "exact upload time",
				filter:   entities.FileFilter{UploadedAt: timePtr(baseTime.Add(time.Hour))},
				expected: []string{"Report_final.PDF"},
			},
			{
				name: "upload time range inclusive",
				filter: entities.FileFilter{
					UploadedAfter:  timePtr(baseTime.Add(time.Hour)),
					UploadedBefore: timePtr(baseTime.Add(2 * time.Hour)),
				},
				expected: []string{"image.png", "Report_final.PDF"},
			},
			{
				name:     "digest",
				filter:   entities.FileFilter{Digest: records[2].Digest},
				expected: []string{"image.png"},
			},
			{
				name:     "combined constraints",
				filter:   entities.FileFilter{FilenameContains: "report", MinSize: int64Ptr(100)},
				expected: []string{"Report_final.PDF"},
			},
			{
				name:     "no match",
				filter:   entities.FileFilter{FilenameContains: "missing"},
				expected: []string{},
			},
			{
				name:     "size ascending",
				filter:   entities.FileFilter{Sort: entities.SortSizeAsc},
				expected: []string{"100%_done.txt", "report.pdf", "image.png", "Report_final.PDF"},
			},
			{
				name:     "size descending",
				filter:   entities.FileFilter{Sort: entities.SortSizeDesc},
				expected: []string{"Report_final.PDF", "image.png", "report.pdf", "100%_done.txt"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := c.List(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, names(got))
			})
		}
	})

	t.Run("filename contains folds non-ascii case", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		for _, r := range []*entities.FileRecord{
			newRecord("Ärger.txt", "text/plain", 3, baseTime),
			newRecord("ÉTÉ_photo.JPG", "image/jpeg", 4, baseTime.Add(time.Hour)),
			newRecord("other.txt", "text/plain", 5, baseTime.Add(2*time.Hour)),
		} {
			_, err := c.InsertIfDigestAbsent(ctx, r)
			require.NoError(t, err)
		}

		got, err := c.List(ctx, entities.FileFilter{FilenameContains: "ärg"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ärger.txt"}, names(got))

		got, err = c.List(ctx, entities.FileFilter{FilenameContains: "été"})
		require.NoError(t, err)
		assert.Equal(t, []string{"ÉTÉ_photo.JPG"}, names(got))
	})

	t.Run("size sort ties fall back to newest first", func(t *testing.T) {
		c := newCatalog(t)
		ctx := context.Background()

		for i, name := range []string{"old", "mid", "new"} {
			_, err := c.InsertIfDigestAbsent(ctx, newRecord(name, "text/plain", 5, baseTime.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}

		got, err := c.List(ctx, entities.FileFilter{Sort: entities.SortSizeAsc})
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid", "old"}, names(got))
	})

	t.Run("invalid filter", func(t *testing.T) {
		c := newCatalog(t)

		_, err := c.List(context.Background(), entities.FileFilter{MinSize: int64Ptr(-1)})
		assert.ErrorIs(t, err, repository.ErrInvalidFilter)
	})

	t.Run("ping", func(t *testing.T) {
		c := newCatalog(t)
		assert.NoError(t, c.Ping(context.Background()))
	})
}
