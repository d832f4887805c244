package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the loaded configuration file and reloads it
// when it changes. Watchers registered on the ConfigManager are notified
// after every successful reload.
type ConfigWatcher struct {
	configManager *ConfigManager
	watcher       *fsnotify.Watcher
	path          string
	logger        *slog.Logger
	debounceTime  time.Duration

	mu      sync.Mutex
	pending *time.Timer

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewConfigWatcher creates a watcher for the manager's config file
func NewConfigWatcher(configManager *ConfigManager, logger *slog.Logger) (*ConfigWatcher, error) {
	path := configManager.ConfigPath()
	if path == "" {
		return nil, fmt.Errorf("no config path set")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so that editors replacing the file are seen
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(absPath), err)
	}

	return &ConfigWatcher{
		configManager: configManager,
		watcher:       watcher,
		path:          absPath,
		logger:        logger.With(slog.String("component", "config_watcher")),
		debounceTime:  500 * time.Millisecond,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// SetDebounceTime sets the debounce time for reload events
func (cw *ConfigWatcher) SetDebounceTime(duration time.Duration) {
	cw.debounceTime = duration
}

// Start starts the configuration watcher
func (cw *ConfigWatcher) Start() {
	cw.logger.Info("Starting config watcher", slog.String("path", cw.path))
	go cw.watchLoop()
}

// Stop stops the watcher and waits for its loop to exit
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		if err := cw.watcher.Close(); err != nil {
			cw.logger.Warn("Error closing file watcher", slog.String("error", err.Error()))
		}
		<-cw.done

		cw.mu.Lock()
		if cw.pending != nil {
			cw.pending.Stop()
		}
		cw.mu.Unlock()
	})
}

// watchLoop is the main watcher loop
func (cw *ConfigWatcher) watchLoop() {
	defer close(cw.done)

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("Config watcher error", slog.String("error", err.Error()))

		case <-cw.stopChan:
			return
		}
	}
}

// handleFileEvent schedules a reload for writes to the watched file.
// Bursts of events within the debounce window collapse into one reload.
func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if !cw.isWatchedFile(event.Name) {
		return
	}

	// Only handle write and create events
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(cw.debounceTime, cw.triggerReload)
}

// isWatchedFile checks if a file is the watched config file
func (cw *ConfigWatcher) isWatchedFile(filename string) bool {
	absFilename, err := filepath.Abs(filename)
	if err != nil {
		return false
	}
	return absFilename == cw.path
}

// triggerReload triggers a configuration reload
func (cw *ConfigWatcher) triggerReload() {
	select {
	case <-cw.stopChan:
		return
	default:
	}

	// Check if file still exists
	if _, err := os.Stat(cw.path); os.IsNotExist(err) {
		cw.logger.Warn("Config file no longer exists", slog.String("path", cw.path))
		return
	}

	if err := cw.configManager.Reload(); err != nil {
		cw.logger.Error("Failed to reload configuration", slog.String("error", err.Error()))
		return
	}

	cw.logger.Info("Configuration reloaded", slog.String("path", cw.path))
}
