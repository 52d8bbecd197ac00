package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if path
// exists, matching hector's zero-config bootstrap convenience. A missing
// file is not an error: .env is optional everywhere this host runs.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Loader reads path once via Load and can Watch the file for changes,
// invoking onChange with a freshly parsed Config per change, mirroring
// hector's FileProvider.Watch debounce-and-reload idiom.
type Loader struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewLoader builds a Loader bound to path.
func NewLoader(path string) (*Loader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
	}
	return &Loader{path: abs}, nil
}

// Load reads and parses the bound config file.
func (l *Loader) Load() (*Config, error) {
	return Load(l.path)
}

// Watch watches the config file for writes, debounces rapid changes, and
// invokes onChange with each successfully reloaded Config. It blocks
// until ctx is canceled or the watcher errors unrecoverably.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("config: loader is closed")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("config: create watcher: %w", err)
	}
	l.watcher = watcher
	l.mu.Unlock()
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	file := filepath.Base(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	slog.Info("config: watching for changes", "path", l.path)

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "error", werr)
		case <-reload:
			cfg, err := l.Load()
			if err != nil {
				slog.Error("config: reload failed", "error", err)
				continue
			}
			slog.Info("config: reloaded")
			onChange(cfg)
		}
	}
}

// Close stops any in-flight Watch.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
