package repository

import (
	"context"

	"github.com/zots0127/uploadstore/internal/domain/entities"
)

// HealthRepository runs the individual dependency checks. Aggregation is
// left to the caller.
type HealthRepository interface {
	// CheckCatalog pings the file catalog
	CheckCatalog(ctx context.Context) entities.CheckResult

	// CheckBlobStore pings the blob store
	CheckBlobStore(ctx context.Context) entities.CheckResult

	// CheckDiskSpace checks free space where spool files are written
	CheckDiskSpace(ctx context.Context) entities.CheckResult

	// GetSystemInfo retrieves process and filesystem figures
	GetSystemInfo(ctx context.Context) (*entities.SystemInfo, error)
}
