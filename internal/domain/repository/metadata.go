package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zots0127/uploadstore/internal/domain/entities"
)

// CatalogBackend defines the type of metadata catalog backend
type CatalogBackend string

const (
	CatalogBackendSQLite   CatalogBackend = "sqlite"
	CatalogBackendPostgres CatalogBackend = "postgres"
)

// FileCatalog is the durable store of FileRecords with a uniqueness
// constraint on the digest
type FileCatalog interface {
	// InsertIfDigestAbsent inserts rec unless a record with the same digest
	// exists. Concurrent callers racing on one digest observe exactly one
	// Inserted result; all others get the winner's record.
	InsertIfDigestAbsent(ctx context.Context, rec *entities.FileRecord) (entities.InsertResult, error)

	// FindByDigest returns the record owning digest
	FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error)

	// Get returns the record with the given id
	Get(ctx context.Context, id string) (*entities.FileRecord, error)

	// List returns all records matching filter in the requested order
	List(ctx context.Context, filter entities.FileFilter) ([]*entities.FileRecord, error)

	// HasStorageKey reports whether any record references key
	HasStorageKey(ctx context.Context, key string) (bool, error)

	// Ping checks catalog connectivity
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close() error
}

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidFilter  = errors.New("invalid filter criteria")
)

// FileFilterBuilder helps build file filters
type FileFilterBuilder struct {
	filter entities.FileFilter
}

// NewFileFilterBuilder creates a new filter builder with the default order
func NewFileFilterBuilder() *FileFilterBuilder {
	return &FileFilterBuilder{filter: entities.FileFilter{Sort: entities.SortDefault}}
}

// WithFilenameContains adds a case-insensitive filename substring filter
func (b *FileFilterBuilder) WithFilenameContains(s string) *FileFilterBuilder {
	b.filter.FilenameContains = s
	return b
}

// WithContentTypeContains adds a case-insensitive content type substring filter
func (b *FileFilterBuilder) WithContentTypeContains(s string) *FileFilterBuilder {
	b.filter.ContentTypeContains = s
	return b
}

// WithDigest adds an exact digest filter
func (b *FileFilterBuilder) WithDigest(digest string) *FileFilterBuilder {
	b.filter.Digest = digest
	return b
}

// WithSize adds an exact size filter
func (b *FileFilterBuilder) WithSize(size *int64) *FileFilterBuilder {
	b.filter.Size = size
	return b
}

// WithSizeRange adds inclusive size bounds
func (b *FileFilterBuilder) WithSizeRange(minSize, maxSize *int64) *FileFilterBuilder {
	b.filter.MinSize = minSize
	b.filter.MaxSize = maxSize
	return b
}

// WithUploadedAt adds an exact upload time filter
func (b *FileFilterBuilder) WithUploadedAt(at *time.Time) *FileFilterBuilder {
	b.filter.UploadedAt = at
	return b
}

// WithDateRange adds inclusive upload time bounds
func (b *FileFilterBuilder) WithDateRange(after, before *time.Time) *FileFilterBuilder {
	b.filter.UploadedAfter = after
	b.filter.UploadedBefore = before
	return b
}

// WithSort overrides the default order
func (b *FileFilterBuilder) WithSort(order entities.SortOrder) *FileFilterBuilder {
	b.filter.Sort = order
	return b
}

// Build returns the built filter
func (b *FileFilterBuilder) Build() entities.FileFilter {
	return b.filter
}

// ValidateFileFilter validates a file filter
func ValidateFileFilter(filter entities.FileFilter) error {
	for _, v := range []*int64{filter.Size, filter.MinSize, filter.MaxSize} {
		if v != nil && *v < 0 {
			return ErrInvalidFilter
		}
	}

	switch filter.Sort {
	case entities.SortDefault, entities.SortSizeAsc, entities.SortSizeDesc:
	default:
		return ErrInvalidFilter
	}

	return nil
}
