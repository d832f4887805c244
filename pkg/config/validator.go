package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	bucketNamePattern = regexp.MustCompile(`^[a-z0-9.-]+$`)
	validLogLevels    = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats   = []string{"json", "text"}
)

// Validator provides configuration validation functions
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig performs comprehensive configuration validation
func (v *Validator) ValidateConfig(config *Config) error {
	if err := v.validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := v.validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}

	if config.Storage.Backend == "s3" {
		if err := v.validateS3Config(&config.S3); err != nil {
			return fmt.Errorf("S3 config validation failed: %w", err)
		}
	}

	if err := v.validateDatabaseConfig(&config.Database); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}

	if err := v.validateCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("cache config validation failed: %w", err)
	}

	if err := v.validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := v.validateMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("metrics config validation failed: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration
func (v *Validator) validateServerConfig(config *ServerConfig) error {
	// Validate port
	if config.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	port, err := strconv.Atoi(config.Port)
	if err != nil {
		return fmt.Errorf("invalid server port: %s", config.Port)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	// Validate timeouts
	if config.ReadTimeout < 0 || config.WriteTimeout < 0 || config.IdleTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if config.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	for _, origin := range config.AllowedOrigins {
		if !v.isValidOrigin(origin) {
			return fmt.Errorf("invalid CORS origin: %s", origin)
		}
	}

	return nil
}

// validateStorageConfig validates storage configuration
func (v *Validator) validateStorageConfig(config *StorageConfig) error {
	switch config.Backend {
	case "local":
		if config.Path == "" {
			return fmt.Errorf("storage path cannot be empty for the local backend")
		}
	case "s3":
	default:
		return fmt.Errorf("invalid storage backend: %s, must be one of [local s3]", config.Backend)
	}

	if config.MaxFileSize < 0 {
		return fmt.Errorf("max file size cannot be negative")
	}

	if config.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval cannot be negative")
	}

	if config.OrphanGrace <= 0 {
		return fmt.Errorf("orphan grace must be positive")
	}

	return nil
}

// validateS3Config validates S3 configuration
func (v *Validator) validateS3Config(config *S3Config) error {
	if config.Region == "" {
		return fmt.Errorf("S3 region cannot be empty")
	}

	if config.Bucket == "" {
		return fmt.Errorf("S3 bucket cannot be empty")
	}

	// Validate bucket name format
	if !v.isValidS3BucketName(config.Bucket) {
		return fmt.Errorf("invalid S3 bucket name: %s", config.Bucket)
	}

	if (config.AccessKey == "") != (config.SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key must be set together")
	}

	// Validate endpoint if provided
	if config.Endpoint != "" && strings.Contains(config.Endpoint, "://") && !v.isValidURL(config.Endpoint) {
		return fmt.Errorf("invalid S3 endpoint: %s", config.Endpoint)
	}

	return nil
}

// validateDatabaseConfig validates database configuration
func (v *Validator) validateDatabaseConfig(config *DatabaseConfig) error {
	switch config.Type {
	case "sqlite":
		if config.Path == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if config.Host == "" {
			return fmt.Errorf("database host cannot be empty for postgres")
		}
		if config.Port < 1 || config.Port > 65535 {
			return fmt.Errorf("database port must be between 1 and 65535")
		}
		if config.Name == "" {
			return fmt.Errorf("database name cannot be empty for postgres")
		}
		if config.MaxConns < 1 {
			return fmt.Errorf("database max conns must be positive")
		}
		if config.MinConns < 0 || config.MinConns > config.MaxConns {
			return fmt.Errorf("database min conns must be between 0 and max conns")
		}
	default:
		return fmt.Errorf("invalid database type: %s, must be one of [sqlite postgres]", config.Type)
	}

	return nil
}

// validateCacheConfig validates cache configuration
func (v *Validator) validateCacheConfig(config *CacheConfig) error {
	if !config.Enabled {
		return nil
	}
	if config.Size < 1 {
		return fmt.Errorf("cache size must be positive when the cache is enabled")
	}
	if config.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	return nil
}

// validateLoggingConfig validates logging configuration
func (v *Validator) validateLoggingConfig(config *LoggingConfig) error {
	if !contains(validLogLevels, strings.ToLower(config.Level)) {
		return fmt.Errorf("invalid log level: %s, must be one of %v", config.Level, validLogLevels)
	}

	if !contains(validLogFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s, must be one of %v", config.Format, validLogFormats)
	}

	return nil
}

// validateMetricsConfig validates metrics configuration
func (v *Validator) validateMetricsConfig(config *MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	if config.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics is enabled")
	}

	if !strings.HasPrefix(config.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}

	return nil
}

// Helper validation functions

func (v *Validator) isValidOrigin(origin string) bool {
	if origin == "*" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (v *Validator) isValidS3BucketName(bucket string) bool {
	// S3 bucket name validation according to AWS rules
	if len(bucket) < 3 || len(bucket) > 63 {
		return false
	}

	// Cannot start or end with hyphen
	if strings.HasPrefix(bucket, "-") || strings.HasSuffix(bucket, "-") {
		return false
	}

	// Cannot contain consecutive hyphens
	if strings.Contains(bucket, "--") {
		return false
	}

	// Should only contain lowercase letters, numbers, dots, and hyphens
	return bucketNamePattern.MatchString(bucket)
}

func (v *Validator) isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	return u.Scheme == "http" || u.Scheme == "https"
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
