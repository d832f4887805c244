package repository

import (
	"context"
	"fmt"
	"runtime"
	"syscall"
	"time"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

const checkTimeout = 3 * time.Second

// HealthRepositoryImpl implements HealthRepository over the file catalog,
// the blob store and the filesystem holding spool files
type HealthRepositoryImpl struct {
	catalog        repository.FileCatalog
	blobs          repository.BlobStore
	catalogBackend repository.CatalogBackend
	storageBackend repository.StorageBackend
	diskPath       string
}

// NewHealthRepository creates a new health repository. diskPath is the
// directory whose filesystem is checked for free space.
func NewHealthRepository(
	catalog repository.FileCatalog,
	catalogBackend repository.CatalogBackend,
	blobs repository.BlobStore,
	storageBackend repository.StorageBackend,
	diskPath string,
) repository.HealthRepository {
	return &HealthRepositoryImpl{
		catalog:        catalog,
		blobs:          blobs,
		catalogBackend: catalogBackend,
		storageBackend: storageBackend,
		diskPath:       diskPath,
	}
}

// CheckCatalog pings the file catalog
func (h *HealthRepositoryImpl) CheckCatalog(ctx context.Context) entities.CheckResult {
	if h.catalog == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Catalog is not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := h.catalog.Ping(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Catalog ping failed: %v", err),
			Details: map[string]interface{}{"backend": string(h.catalogBackend)},
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Catalog is healthy",
		Details: map[string]interface{}{
			"backend":    string(h.catalogBackend),
			"latency_ms": time.Since(start).Milliseconds(),
		},
	}
}

// CheckBlobStore pings the blob store
func (h *HealthRepositoryImpl) CheckBlobStore(ctx context.Context) entities.CheckResult {
	if h.blobs == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Blob store is not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.blobs.Ping(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Blob store not accessible: %v", err),
			Details: map[string]interface{}{"backend": string(h.storageBackend)},
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Blob store is healthy",
		Details: map[string]interface{}{"backend": string(h.storageBackend)},
	}
}

// CheckDiskSpace checks available disk space
func (h *HealthRepositoryImpl) CheckDiskSpace(ctx context.Context) entities.CheckResult {
	total, available, err := diskUsage(h.diskPath)
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Failed to check disk space: %v", err),
		}
	}

	usagePercent := 0.0
	if total > 0 {
		usagePercent = float64(total-available) / float64(total) * 100
	}

	details := map[string]interface{}{
		"path":            h.diskPath,
		"total_bytes":     total,
		"available_bytes": available,
		"usage_percent":   usagePercent,
	}

	status := entities.HealthStatusUp
	message := "Disk space is sufficient"

	if usagePercent > 95 {
		status = entities.HealthStatusDown
		message = "Critical: Disk space is critically low"
	} else if usagePercent > 85 {
		status = entities.HealthStatusPartial
		message = "Warning: Disk space is running low"
	}

	return entities.CheckResult{
		Status:  status,
		Message: message,
		Details: details,
	}
}

// GetSystemInfo retrieves system information
func (h *HealthRepositoryImpl) GetSystemInfo(ctx context.Context) (*entities.SystemInfo, error) {
	total, available, err := diskUsage(h.diskPath)
	if err != nil {
		return nil, err
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &entities.SystemInfo{
		TotalDiskSpace:     int64(total),
		AvailableDiskSpace: int64(available),
		TotalMemory:        int64(memStats.Sys),
		AvailableMemory:    int64(memStats.Sys - memStats.Alloc),
		MemoryUsagePercent: float64(memStats.Alloc) / float64(memStats.Sys) * 100,
		GoRoutines:         runtime.NumGoroutine(),
	}
	if total > 0 {
		info.DiskUsagePercent = float64(total-available) / float64(total) * 100
	}
	return info, nil
}

func diskUsage(path string) (total, available uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}
