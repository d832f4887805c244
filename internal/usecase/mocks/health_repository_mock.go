package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// MockHealthRepository is a mock implementation of HealthRepository
type MockHealthRepository struct {
	mock.Mock
}

var _ repository.HealthRepository = (*MockHealthRepository)(nil)

func (m *MockHealthRepository) CheckCatalog(ctx context.Context) entities.CheckResult {
	return m.Called(ctx).Get(0).(entities.CheckResult)
}

func (m *MockHealthRepository) CheckBlobStore(ctx context.Context) entities.CheckResult {
	return m.Called(ctx).Get(0).(entities.CheckResult)
}

func (m *MockHealthRepository) CheckDiskSpace(ctx context.Context) entities.CheckResult {
	return m.Called(ctx).Get(0).(entities.CheckResult)
}

func (m *MockHealthRepository) GetSystemInfo(ctx context.Context) (*entities.SystemInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SystemInfo), args.Error(1)
}
