package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

type namedCheck struct {
	name string
	run  func(context.Context) entities.CheckResult
}

// HealthUseCase reports on the catalog, the blob store and local disk
type HealthUseCase struct {
	healthRepo repository.HealthRepository
	startTime  time.Time
	version    string
}

// NewHealthUseCase creates a new health use case
func NewHealthUseCase(healthRepo repository.HealthRepository, version string) *HealthUseCase {
	return &HealthUseCase{
		healthRepo: healthRepo,
		startTime:  time.Now(),
		version:    version,
	}
}

// GetHealth runs every check and folds them into one status
func (h *HealthUseCase) GetHealth(ctx context.Context) *entities.HealthCheck {
	checks := runChecks(ctx, []namedCheck{
		{entities.CheckCatalog, h.healthRepo.CheckCatalog},
		{entities.CheckStorage, h.healthRepo.CheckBlobStore},
		{entities.CheckDisk, h.healthRepo.CheckDiskSpace},
	})

	health := &entities.HealthCheck{
		Status:    entities.AggregateStatus(checks),
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime),
		Checks:    checks,
	}
	// system figures are informational; a failure leaves them zero
	if info, err := h.healthRepo.GetSystemInfo(ctx); err == nil {
		health.SystemInfo = *info
	}
	return health
}

// GetReadiness reports whether both the catalog and the blob store respond.
// The message names every dependency that is down.
func (h *HealthUseCase) GetReadiness(ctx context.Context) *entities.Readiness {
	checks := runChecks(ctx, []namedCheck{
		{entities.CheckCatalog, h.healthRepo.CheckCatalog},
		{entities.CheckStorage, h.healthRepo.CheckBlobStore},
	})

	var down []string
	for name, check := range checks {
		if check.Status == entities.HealthStatusDown {
			down = append(down, fmt.Sprintf("%s: %s", name, check.Message))
		}
	}
	if len(down) == 0 {
		return &entities.Readiness{Ready: true, Message: "Catalog and blob store are reachable", Checks: checks}
	}
	sort.Strings(down)
	return &entities.Readiness{Ready: false, Message: strings.Join(down, "; "), Checks: checks}
}

// GetLiveness reports process uptime; a running process is always alive
func (h *HealthUseCase) GetLiveness() time.Duration {
	return time.Since(h.startTime)
}

// runChecks runs checks concurrently so one slow dependency does not
// delay the others
func runChecks(ctx context.Context, checks []namedCheck) map[string]entities.CheckResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]entities.CheckResult, len(checks))
	)
	for _, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.run(ctx)
			mu.Lock()
			results[c.name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
