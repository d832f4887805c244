package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/usecase"
	"github.com/zots0127/uploadstore/internal/usecase/mocks"
)

var (
	catalogUp   = entities.CheckResult{Status: entities.HealthStatusUp, Message: "Catalog is healthy"}
	catalogDown = entities.CheckResult{Status: entities.HealthStatusDown, Message: "Catalog ping failed: connection refused"}
	blobsUp     = entities.CheckResult{Status: entities.HealthStatusUp, Message: "Blob store is healthy"}
	blobsDown   = entities.CheckResult{Status: entities.HealthStatusDown, Message: "Blob store not accessible: no such bucket"}
	diskUp      = entities.CheckResult{Status: entities.HealthStatusUp, Message: "Disk space is sufficient"}
	diskLow     = entities.CheckResult{Status: entities.HealthStatusPartial, Message: "Warning: Disk space is running low"}
)

func newHealthRepo(catalog, blobs, disk entities.CheckResult) *mocks.MockHealthRepository {
	m := new(mocks.MockHealthRepository)
	m.On("CheckCatalog", mock.Anything).Return(catalog).Maybe()
	m.On("CheckBlobStore", mock.Anything).Return(blobs).Maybe()
	m.On("CheckDiskSpace", mock.Anything).Return(disk).Maybe()
	return m
}

func TestHealthUseCase_GetHealth(t *testing.T) {
	tests := []struct {
		name           string
		catalog        entities.CheckResult
		blobs          entities.CheckResult
		disk           entities.CheckResult
		expectedStatus entities.HealthStatus
	}{
		{"all checks healthy", catalogUp, blobsUp, diskUp, entities.HealthStatusUp},
		{"catalog unreachable", catalogDown, blobsUp, diskLow, entities.HealthStatusDown},
		{"blob store unreachable", catalogUp, blobsDown, diskUp, entities.HealthStatusDown},
		{"low disk space", catalogUp, blobsUp, diskLow, entities.HealthStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newHealthRepo(tt.catalog, tt.blobs, tt.disk)
			repo.On("GetSystemInfo", mock.Anything).Return(&entities.SystemInfo{GoRoutines: 10}, nil)

			health := usecase.NewHealthUseCase(repo, "1.0.0").GetHealth(context.Background())

			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
			assert.False(t, health.Timestamp.IsZero())
			assert.Equal(t, tt.catalog, health.Checks[entities.CheckCatalog])
			assert.Equal(t, tt.blobs, health.Checks[entities.CheckStorage])
			assert.Equal(t, tt.disk, health.Checks[entities.CheckDisk])
			assert.Equal(t, 10, health.SystemInfo.GoRoutines)
		})
	}
}

func TestHealthUseCase_GetHealthWithoutSystemInfo(t *testing.T) {
	repo := newHealthRepo(catalogUp, blobsUp, diskUp)
	repo.On("GetSystemInfo", mock.Anything).Return(nil, errors.New("statfs failed"))

	health := usecase.NewHealthUseCase(repo, "1.0.0").GetHealth(context.Background())

	assert.Equal(t, entities.HealthStatusUp, health.Status)
	assert.Equal(t, entities.SystemInfo{}, health.SystemInfo)
}

func TestHealthUseCase_GetReadiness(t *testing.T) {
	tests := []struct {
		name          string
		catalog       entities.CheckResult
		blobs         entities.CheckResult
		expectedReady bool
		expectedMsg   string
	}{
		{
			name:          "catalog and blob store up",
			catalog:       catalogUp,
			blobs:         blobsUp,
			expectedReady: true,
			expectedMsg:   "Catalog and blob store are reachable",
		},
		{
			name:        "blob store down",
			catalog:     catalogUp,
			blobs:       blobsDown,
			expectedMsg: "storage: Blob store not accessible: no such bucket",
		},
		{
			name:        "both down",
			catalog:     catalogDown,
			blobs:       blobsDown,
			expectedMsg: "catalog: Catalog ping failed: connection refused; storage: Blob store not accessible: no such bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newHealthRepo(tt.catalog, tt.blobs, diskLow)

			readiness := usecase.NewHealthUseCase(repo, "1.0.0").GetReadiness(context.Background())

			assert.Equal(t, tt.expectedReady, readiness.Ready)
			assert.Equal(t, tt.expectedMsg, readiness.Message)
			require.Len(t, readiness.Checks, 2)
			assert.Equal(t, tt.catalog, readiness.Checks[entities.CheckCatalog])
			assert.Equal(t, tt.blobs, readiness.Checks[entities.CheckStorage])
			repo.AssertNotCalled(t, "CheckDiskSpace", mock.Anything)
		})
	}
}

func TestHealthUseCase_GetLiveness(t *testing.T) {
	uc := usecase.NewHealthUseCase(new(mocks.MockHealthRepository), "1.0.0")
	assert.GreaterOrEqual(t, uc.GetLiveness().Nanoseconds(), int64(0))
}
