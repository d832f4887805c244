package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/uploadstore/internal/domain/entities"
)

// MockFileCatalog is a mock implementation of FileCatalog
type MockFileCatalog struct {
	mock.Mock
}

func (m *MockFileCatalog) InsertIfDigestAbsent(ctx context.Context, rec *entities.FileRecord) (entities.InsertResult, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(entities.InsertResult), args.Error(1)
}

func (m *MockFileCatalog) FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FileRecord), args.Error(1)
}

func (m *MockFileCatalog) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FileRecord), args.Error(1)
}

func (m *MockFileCatalog) List(ctx context.Context, filter entities.FileFilter) ([]*entities.FileRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FileRecord), args.Error(1)
}

func (m *MockFileCatalog) HasStorageKey(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockFileCatalog) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockFileCatalog) Close() error {
	args := m.Called()
	return args.Error(0)
}
