package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in both directions
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Config defines middleware configuration
type Config struct {
	// Logging configuration
	EnableLogging bool     `json:"enable_logging"`
	SkipPaths     []string `json:"skip_paths"`

	// CORS configuration
	EnableCORS       bool     `json:"enable_cors"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`

	// Security configuration
	EnableSecurity bool   `json:"enable_security"`
	FrameOptions   string `json:"frame_options"`
	HSTSMaxAge     int    `json:"hsts_max_age"`
}

// DefaultConfig returns default middleware configuration
func DefaultConfig() *Config {
	return &Config{
		EnableLogging: true,
		SkipPaths:     []string{"/health", "/metrics"},

		EnableCORS:       true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours

		EnableSecurity: true,
		FrameOptions:   "DENY",
		HSTSMaxAge:     0,
	}
}

// MiddlewareChain holds all middleware instances
type MiddlewareChain struct {
	config *Config
	logger *slog.Logger
}

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(config *Config, logger *slog.Logger) *MiddlewareChain {
	if config == nil {
		config = DefaultConfig()
	}
	return &MiddlewareChain{
		config: config,
		logger: logger.With(slog.String("component", "http")),
	}
}

// Apply applies all configured middleware to the Gin engine. Request ids
// come first so that every later middleware can log them.
func (m *MiddlewareChain) Apply(r *gin.Engine) {
	r.Use(RequestID())
	r.Use(m.Recovery())

	if m.config.EnableSecurity {
		r.Use(SecurityHeaders(m.config))
	}

	if m.config.EnableCORS {
		r.Use(CORS(m.config))
	}

	if m.config.EnableLogging {
		r.Use(AccessLog(m.logger, m.config.SkipPaths))
	}
}

// GetConfig returns the middleware configuration
func (m *MiddlewareChain) GetConfig() *Config {
	return m.config
}

// Recovery turns panics into 500 responses and logs them
func (m *MiddlewareChain) Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		m.logger.Error("Panic recovered",
			slog.String("request_id", GetRequestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// RequestID takes the incoming X-Request-ID or assigns a new one and
// echoes it on the response
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetClientIP extracts real client IP from request
func GetClientIP(c *gin.Context) string {
	// Check X-Forwarded-For header
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		// Take the first IP if multiple are listed
		if commaIdx := strings.Index(xff, ","); commaIdx != -1 {
			return strings.TrimSpace(xff[:commaIdx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to remote address
	return c.ClientIP()
}

// GetRequestID returns the id assigned by RequestID, falling back to the
// request header
func GetRequestID(c *gin.Context) string {
	if reqID, exists := c.Get(requestIDKey); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return c.GetHeader(RequestIDHeader)
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
			return true
		}
	}
	return false
}
