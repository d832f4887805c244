package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	S3       S3Config       `yaml:"s3" json:"s3"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port            string        `yaml:"port" json:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"5m"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins" env:"CORS_ORIGINS" default:"[*]"`
}

// Address returns host:port for the listener
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Backend         string        `yaml:"backend" json:"backend" env:"STORAGE_BACKEND" default:"local"` // local, s3
	Path            string        `yaml:"path" json:"path" env:"STORAGE_PATH" default:"./storage"`
	TempDir         string        `yaml:"temp_dir" json:"temp_dir" env:"STORAGE_TEMP_DIR"`
	MaxFileSize     ByteSize      `yaml:"max_file_size" json:"max_file_size" env:"STORAGE_MAX_FILE_SIZE" default:"100MB"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"STORAGE_CLEANUP_INTERVAL" default:"1h"`
	OrphanGrace     time.Duration `yaml:"orphan_grace" json:"orphan_grace" env:"STORAGE_ORPHAN_GRACE" default:"15m"`
}

// S3Config holds S3 configuration
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint" env:"S3_ENDPOINT"`
	Region    string `yaml:"region" json:"region" env:"S3_REGION" default:"us-east-1"`
	Bucket    string `yaml:"bucket" json:"bucket" env:"S3_BUCKET" default:"uploads"`
	Prefix    string `yaml:"prefix" json:"prefix" env:"S3_PREFIX"`
	AccessKey string `yaml:"access_key" json:"access_key" env:"S3_ACCESS_KEY" sensitive:"true"`
	SecretKey string `yaml:"secret_key" json:"secret_key" env:"S3_SECRET_KEY" sensitive:"true"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl" env:"S3_USE_SSL" default:"false"`
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DB_TYPE" default:"sqlite"` // sqlite, postgres
	Path            string        `yaml:"path" json:"path" env:"DB_PATH" default:"./storage/catalog.db"`
	Host            string        `yaml:"host" json:"host" env:"DB_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"DB_PORT" default:"5432"`
	Name            string        `yaml:"name" json:"name" env:"DB_NAME" default:"uploadstore"`
	User            string        `yaml:"user" json:"user" env:"DB_USER"`
	Password        string        `yaml:"password" json:"password" env:"DB_PASSWORD" sensitive:"true"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" env:"DB_SSL_MODE" default:"disable"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns" env:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns" env:"DB_MIN_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

// CacheConfig holds the record cache configuration
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" env:"CACHE_ENABLED" default:"true"`
	Size    int           `yaml:"size" json:"size" env:"CACHE_SIZE" default:"1024"`
	TTL     time.Duration `yaml:"ttl" json:"ttl" env:"CACHE_TTL" default:"5m"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT" default:"json"` // json, text
}

// SlogLevel maps Level onto slog levels; unknown values mean info
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED" default:"true"`
	Path    string `yaml:"path" json:"path" env:"METRICS_PATH" default:"/metrics"`
}

// ByteSize is a byte count that also accepts sizes like "100MB"
type ByteSize int64

// UnmarshalYAML accepts plain integers and size strings
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	n, err := ParseSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

var byteSizeType = reflect.TypeOf(ByteSize(0))

// ConfigManager manages configuration loading and validation
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []func(*Config)
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers: make([]func(*Config), 0),
	}
}

// Load loads configuration from file and environment variables. A
// missing file is not an error; defaults and environment still apply.
func (cm *ConfigManager) Load(configPath string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := loadFromFile(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Override with environment variables
	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := NewValidator().ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mu.Lock()
	cm.configPath = configPath
	cm.config = config
	cm.mu.Unlock()

	return config, nil
}

// Reload reloads the configuration and notifies watchers. On failure the
// previous configuration stays in effect.
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no config path set")
	}

	config, err := cm.Load(path)
	if err != nil {
		return err
	}

	cm.mu.RLock()
	watchers := append([]func(*Config){}, cm.watchers...)
	cm.mu.RUnlock()

	// Notify watchers
	for _, watcher := range watchers {
		watcher(config)
	}

	return nil
}

// Watch adds a configuration change watcher
func (cm *ConfigManager) Watch(watcher func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigPath returns the path passed to the last Load
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) error {
	return setEnvVars(reflect.ValueOf(config).Elem())
}

// setEnvVars recursively sets environment variables on struct fields
func setEnvVars(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			// Recurse into nested structs
			if field.Kind() == reflect.Struct {
				if err := setEnvVars(field); err != nil {
					return err
				}
			}
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldValue sets a field value from an environment variable string
func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch field.Type() {
		case reflect.TypeOf(time.Duration(0)):
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		case byteSizeType:
			size, err := ParseSize(value)
			if err != nil {
				return err
			}
			field.SetInt(size)
		default:
			var intValue int64
			_, err := fmt.Sscanf(value, "%d", &intValue)
			if err != nil {
				return err
			}
			if field.OverflowInt(intValue) {
				return fmt.Errorf("value %d overflows %s", intValue, field.Type())
			}
			field.SetInt(intValue)
		}
	case reflect.Bool:
		boolValue := value == "true" || value == "1" || value == "yes" || value == "on"
		field.SetBool(boolValue)
	case reflect.Slice:
		// Handle comma-separated values for slices
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Backend:         "local",
			Path:            "./storage",
			MaxFileSize:     100 * 1024 * 1024, // 100MB
			CleanupInterval: time.Hour,
			OrphanGrace:     15 * time.Minute,
		},
		S3: S3Config{
			Region: "us-east-1",
			Bucket: "uploads",
			UseSSL: false,
		},
		Database: DatabaseConfig{
			Type:            "sqlite",
			Path:            "./storage/catalog.db",
			Host:            "localhost",
			Port:            5432,
			Name:            "uploadstore",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: time.Hour,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    1024,
			TTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LogSummary logs the effective configuration without sensitive values
func LogSummary(config *Config, logger *slog.Logger) {
	attrs := []any{
		slog.String("address", config.Server.Address()),
		slog.String("storage_backend", config.Storage.Backend),
		slog.String("max_file_size", FormatSize(int64(config.Storage.MaxFileSize))),
		slog.String("catalog", config.Database.Type),
		slog.Bool("cache", config.Cache.Enabled),
		slog.Bool("metrics", config.Metrics.Enabled),
		slog.String("log_level", config.Logging.Level),
	}

	switch config.Storage.Backend {
	case "s3":
		attrs = append(attrs, slog.String("s3_bucket", config.S3.Bucket))
		// Log S3 credentials hash if present
		if config.S3.AccessKey != "" {
			attrs = append(attrs, slog.String("s3_access_key_hash", fingerprint(config.S3.AccessKey)))
		}
	default:
		attrs = append(attrs, slog.String("storage_path", config.Storage.Path))
	}

	if config.Database.Type == "postgres" {
		attrs = append(attrs,
			slog.String("db_host", config.Database.Host),
			slog.String("db_name", config.Database.Name),
		)
	} else {
		attrs = append(attrs, slog.String("db_path", config.Database.Path))
	}

	logger.Info("Configuration loaded", attrs...)
}

func fingerprint(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:8]) + "..."
}
