package dev

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Change represents a detected file change.
type Change struct {
	Path    string
	Removed bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files or directories to watch.
	Paths []string

	// Ignore holds file name globs to skip.
	Ignore []string

	// Interval is the delay between scans.
	Interval time.Duration
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"*.tmp",
	"*.swp",
	"*~",
	".#*",
}

// Watcher monitors files for changes by polling their modification times.
type Watcher struct {
	config      WatcherConfig
	onChange    func(Change)
	mu          sync.Mutex
	running     bool
	initialized bool
	stopCh      chan struct{}
	timestamps  map[string]time.Time
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Interval == 0 {
		config.Interval = 250 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}

	return &Watcher{
		config:     config,
		timestamps: make(map[string]time.Time),
	}
}

// OnChange sets the callback for file changes.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start watches until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()

	w.scan(false)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			w.scan(true)
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// scan records modification times and, when report is set, calls the
// change callback for new, modified and removed files.
func (w *Watcher) scan(report bool) {
	seen := make(map[string]bool)
	var changes []Change

	for _, root := range w.config.Paths {
		filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if w.shouldIgnore(p) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			seen[p] = true

			w.mu.Lock()
			last, exists := w.timestamps[p]
			w.timestamps[p] = info.ModTime()
			initialized := w.initialized
			w.mu.Unlock()

			if exists && info.ModTime().After(last) || !exists && initialized {
				changes = append(changes, Change{Path: p})
			}
			return nil
		})
	}

	w.mu.Lock()
	for p := range w.timestamps {
		if !seen[p] {
			delete(w.timestamps, p)
			changes = append(changes, Change{Path: p, Removed: true})
		}
	}
	w.initialized = true
	callback := w.onChange
	w.mu.Unlock()

	if !report || callback == nil {
		return
	}
	for _, c := range changes {
		callback(c)
	}
}

// shouldIgnore matches the base name of path against the ignore globs.
func (w *Watcher) shouldIgnore(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.config.Ignore {
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
