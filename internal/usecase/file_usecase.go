package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// FileUseCase serves read access to stored files
type FileUseCase struct {
	catalog repository.FileCatalog
	blobs   repository.BlobStore
	logger  *slog.Logger
}

// NewFileUseCase creates a new file use case
func NewFileUseCase(catalog repository.FileCatalog, blobs repository.BlobStore, logger *slog.Logger) *FileUseCase {
	return &FileUseCase{
		catalog: catalog,
		blobs:   blobs,
		logger:  logger.With(slog.String("component", "files")),
	}
}

// Get returns the record with the given id
func (f *FileUseCase) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	rec, err := f.catalog.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, storageError("get record", err)
	}
	return rec, nil
}

// List returns the records matching the raw listing parameters
func (f *FileUseCase) List(ctx context.Context, params ListParams) ([]*entities.FileRecord, error) {
	filter, err := BuildFileFilter(params)
	if err != nil {
		return nil, err
	}

	records, err := f.catalog.List(ctx, filter)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidFilter) {
			return nil, err
		}
		return nil, storageError("list records", err)
	}
	return records, nil
}

// OpenContent returns the record and a reader over its content. The
// caller closes the reader.
func (f *FileUseCase) OpenContent(ctx context.Context, id string) (*entities.FileRecord, io.ReadCloser, error) {
	rec, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := f.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			f.logger.Error("Record references missing blob",
				slog.String("id", rec.ID),
				slog.String("key", rec.StorageKey),
			)
		}
		return nil, nil, storageError("open blob", err)
	}
	return rec, rc, nil
}
