package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/usecase"
)

// HealthHandler serves the health, liveness and readiness endpoints
type HealthHandler struct {
	healthUseCase *usecase.HealthUseCase
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthUseCase *usecase.HealthUseCase) *HealthHandler {
	return &HealthHandler{
		healthUseCase: healthUseCase,
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.GetHealth)
	router.GET("/health/live", h.GetLiveness)
	router.GET("/health/ready", h.GetReadiness)
}

// GetHealth returns every check. A partial status (low disk) still
// answers 200 so load balancers keep routing.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	health := h.healthUseCase.GetHealth(c.Request.Context())

	statusCode := http.StatusOK
	if health.Status == entities.HealthStatusDown {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "alive",
		"uptime_seconds": int64(h.healthUseCase.GetLiveness().Seconds()),
	})
}

// GetReadiness answers 503 unless both the catalog and the blob store
// respond, listing each of them
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	readiness := h.healthUseCase.GetReadiness(c.Request.Context())

	status, statusCode := "ready", http.StatusOK
	if !readiness.Ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"status":  status,
		"message": readiness.Message,
		"checks":  readiness.Checks,
	})
}
