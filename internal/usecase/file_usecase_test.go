package usecase_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
	"github.com/zots0127/uploadstore/internal/usecase"
	"github.com/zots0127/uploadstore/internal/usecase/mocks"
)

func TestFileUseCase_Get(t *testing.T) {
	tests := []struct {
		name      string
		repoErr   error
		expectErr error
	}{
		{name: "found"},
		{name: "not found", repoErr: repository.ErrRecordNotFound, expectErr: usecase.ErrFileNotFound},
		{name: "catalog failure", repoErr: errors.New("connection refused"), expectErr: usecase.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := new(mocks.MockFileCatalog)
			blobs := new(mocks.MockBlobStore)
			if tt.repoErr != nil {
				cat.On("Get", mock.Anything, "id-1").Return(nil, tt.repoErr)
			} else {
				cat.On("Get", mock.Anything, "id-1").Return(&entities.FileRecord{ID: "id-1"}, nil)
			}

			rec, err := usecase.NewFileUseCase(cat, blobs, discardLogger()).Get(context.Background(), "id-1")
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				assert.Nil(t, rec)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "id-1", rec.ID)
			}
			cat.AssertExpectations(t)
		})
	}
}

func TestFileUseCase_List(t *testing.T) {
	cat := new(mocks.MockFileCatalog)
	blobs := new(mocks.MockBlobStore)
	uc := usecase.NewFileUseCase(cat, blobs, discardLogger())

	expectedFilter := entities.FileFilter{FilenameContains: "report", Sort: entities.SortSizeAsc}
	cat.On("List", mock.Anything, expectedFilter).Return([]*entities.FileRecord{{ID: "a"}, {ID: "b"}}, nil)

	records, err := uc.List(context.Background(), usecase.ListParams{OriginalFilename: "report", SizeSort: "asc"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = uc.List(context.Background(), usecase.ListParams{Size: "abc"})
	assert.ErrorIs(t, err, usecase.ErrInvalidFilter)

	cat.AssertExpectations(t)
}

func TestFileUseCase_OpenContent(t *testing.T) {
	rec := &entities.FileRecord{ID: "id-1", StorageKey: "abcd1234.txt"}

	t.Run("streams blob", func(t *testing.T) {
		cat := new(mocks.MockFileCatalog)
		blobs := new(mocks.MockBlobStore)
		cat.On("Get", mock.Anything, "id-1").Return(rec, nil)
		blobs.On("Get", mock.Anything, "abcd1234.txt").Return(io.NopCloser(strings.NewReader("content")), nil)

		got, rc, err := usecase.NewFileUseCase(cat, blobs, discardLogger()).OpenContent(context.Background(), "id-1")
		require.NoError(t, err)
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "content", string(data))
		assert.Equal(t, rec, got)
	})

	t.Run("missing record", func(t *testing.T) {
		cat := new(mocks.MockFileCatalog)
		blobs := new(mocks.MockBlobStore)
		cat.On("Get", mock.Anything, "id-2").Return(nil, repository.ErrRecordNotFound)

		_, _, err := usecase.NewFileUseCase(cat, blobs, discardLogger()).OpenContent(context.Background(), "id-2")
		assert.ErrorIs(t, err, usecase.ErrFileNotFound)
		blobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("missing blob", func(t *testing.T) {
		cat := new(mocks.MockFileCatalog)
		blobs := new(mocks.MockBlobStore)
		cat.On("Get", mock.Anything, "id-1").Return(rec, nil)
		blobs.On("Get", mock.Anything, "abcd1234.txt").Return(nil, repository.ErrBlobNotFound)

		_, _, err := usecase.NewFileUseCase(cat, blobs, discardLogger()).OpenContent(context.Background(), "id-1")
		assert.ErrorIs(t, err, usecase.ErrStorage)
		assert.ErrorIs(t, err, repository.ErrBlobNotFound)
	})
}
