package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/fha"
)

// DefaultReloadDelay coalesces the burst of events editors produce on save.
const DefaultReloadDelay = 200 * time.Millisecond

// TunablesSetter receives reloaded scheduler tunables. *fha.Scheduler
// implements it.
type TunablesSetter interface {
	SetTunables(t fha.Tunables) error
}

// Watcher reloads the configuration file when it changes and pushes the
// scheduler section into a running scheduler. Other sections are only read
// at startup.
//
// The parent directory is watched rather than the file itself, so editors that
// save by renaming a temporary file over the original keep being noticed.
type Watcher struct {
	path   string
	target TunablesSetter
	delay  time.Duration

	mu       sync.Mutex
	reloads  int
	failures int
}

// NewWatcher creates a watcher for path. Nothing is applied until the file
// changes or Reload is called.
func NewWatcher(path string, target TunablesSetter) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: config path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{path: abs, target: target, delay: DefaultReloadDelay}, nil
}

// SetDelay changes the debounce delay. Call before Run.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Reload reads the file and applies its scheduler section. A file that fails
// to load or validate leaves the running tunables untouched.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		w.recordFailure()
		return err
	}
	tun, err := cfg.Scheduler.Tunables()
	if err != nil {
		w.recordFailure()
		return err
	}
	if err := w.target.SetTunables(tun); err != nil {
		w.recordFailure()
		return fmt.Errorf("apply tunables: %w", err)
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	return nil
}

func (w *Watcher) recordFailure() {
	w.mu.Lock()
	w.failures++
	w.mu.Unlock()
}

// Counts returns the number of successful and failed reloads.
func (w *Watcher) Counts() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.failures
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error if the watch cannot be set up or fsnotify fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger.Info("Watching configuration for scheduler changes", logger.KeyPath, w.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.Reload(); err != nil {
				logger.Warn("Configuration reload failed, keeping current tunables",
					logger.KeyPath, w.path,
					logger.Err(err))
				continue
			}
			logger.Info("Configuration reloaded", logger.KeyPath, w.path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
