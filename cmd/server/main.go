package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/uploadstore/internal/adapter/handler"
	"github.com/zots0127/uploadstore/internal/domain/repository"
	"github.com/zots0127/uploadstore/internal/infrastructure/blobstore"
	"github.com/zots0127/uploadstore/internal/infrastructure/catalog"
	"github.com/zots0127/uploadstore/internal/infrastructure/hasher"
	infrarepo "github.com/zots0127/uploadstore/internal/infrastructure/repository"
	"github.com/zots0127/uploadstore/internal/usecase"
	"github.com/zots0127/uploadstore/pkg/config"
	"github.com/zots0127/uploadstore/pkg/metrics"
	"github.com/zots0127/uploadstore/pkg/middleware"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Parse command line flags
	var (
		configFile = flag.String("config", "", "Configuration file path")
		watch      = flag.Bool("watch", true, "Reload the log level when the configuration file changes")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	if err := run(*configFile, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "uploadstore: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, watch bool) error {
	configManager := config.NewConfigManager()
	cfg, err := configManager.Load(findConfigFile(configFile))
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Logging.SlogLevel())
	logger := newLogger(os.Stdout, cfg.Logging.Format, level)
	slog.SetDefault(logger)

	config.LogSummary(cfg, logger)

	if watch && configManager.ConfigPath() != "" {
		configManager.Watch(func(c *config.Config) {
			level.Set(c.Logging.SlogLevel())
			logger.Info("Log level updated", slog.String("level", c.Logging.Level))
		})
		watcher, err := config.NewConfigWatcher(configManager, logger)
		if err != nil {
			logger.Warn("Config watcher disabled", slog.String("error", err.Error()))
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	fileCatalog, err := newCatalog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	defer fileCatalog.Close()

	tempDir := cfg.Storage.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	ingest := usecase.NewIngestUseCase(fileCatalog, blobs, hasher.New(), logger, usecase.WithTempDir(tempDir))
	files := usecase.NewFileUseCase(fileCatalog, blobs, logger)

	diskPath := tempDir
	if cfg.Storage.Backend == string(repository.StorageBackendLocal) {
		diskPath = cfg.Storage.Path
	}
	health := usecase.NewHealthUseCase(
		infrarepo.NewHealthRepository(
			fileCatalog, repository.CatalogBackend(cfg.Database.Type),
			blobs, repository.StorageBackend(cfg.Storage.Backend),
			diskPath,
		),
		version,
	)

	if cfg.Storage.CleanupInterval > 0 {
		sweeper := usecase.NewSweepUseCase(fileCatalog, blobs, cfg.Storage.CleanupInterval, cfg.Storage.OrphanGrace, logger,
			usecase.WithSpoolDir(tempDir))
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	router := newRouter(cfg, logger)
	handler.NewFileHandler(ingest, files, int64(cfg.Storage.MaxFileSize), logger).RegisterRoutes(router)
	handler.NewHealthHandler(health).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting",
			slog.String("address", server.Addr),
			slog.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped")
	return nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if cfg.Logging.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	mwConfig := middleware.DefaultConfig()
	mwConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	if cfg.Metrics.Enabled {
		mwConfig.SkipPaths = []string{"/health", cfg.Metrics.Path}
	}
	middleware.NewMiddlewareChain(mwConfig, logger).Apply(router)

	if cfg.Metrics.Enabled {
		router.Use(metrics.Middleware())
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	return router
}

func newBlobStore(cfg *config.Config) (repository.BlobStore, error) {
	switch cfg.Storage.Backend {
	case string(repository.StorageBackendS3):
		return blobstore.NewS3Store(blobstore.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			TempDir:   cfg.Storage.TempDir,
		})
	default:
		return blobstore.NewLocalStore(cfg.Storage.Path)
	}
}

func newCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.FileCatalog, error) {
	var (
		fileCatalog repository.FileCatalog
		err         error
	)

	switch cfg.Database.Type {
	case string(repository.CatalogBackendPostgres):
		fileCatalog, err = catalog.NewPostgresCatalog(ctx, catalog.PostgresOptions{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Name:            cfg.Database.Name,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
	default:
		fileCatalog, err = catalog.NewSQLiteCatalog(cfg.Database.Path)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		fileCatalog = catalog.NewCachedCatalog(fileCatalog, cfg.Cache.Size, cfg.Cache.TTL)
	}
	return fileCatalog, nil
}

// findConfigFile returns path, or the first default config file present
func findConfigFile(path string) string {
	if path != "" {
		return path
	}
	for _, file := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(file); err == nil {
			return file
		}
	}
	return ""
}
