package usecase

import (
	"errors"
	"fmt"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

var (
	// ErrNoContent is returned when an upload carries no file at all
	ErrNoContent = errors.New("no file provided")
	// ErrFileNotFound is returned when no record has the requested id
	ErrFileNotFound = errors.New("file not found")
	// ErrStorage wraps failures of the blob store or the catalog
	ErrStorage = errors.New("storage error")
	// ErrRead wraps failures reading the upload body
	ErrRead = errors.New("failed to read upload")
	// ErrInvalidFilter is returned for malformed listing parameters
	ErrInvalidFilter = repository.ErrInvalidFilter
)

// ConflictError reports that the uploaded content is already stored
type ConflictError struct {
	Existing *entities.FileRecord
}

func (e *ConflictError) Error() string {
	if e.Existing == nil {
		return "file already exists"
	}
	return fmt.Sprintf("file already exists: %s", e.Existing.ID)
}

// AsConflict unwraps err into a ConflictError if it is one
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func readError(err error) error {
	return fmt.Errorf("%w: %w", ErrRead, err)
}
