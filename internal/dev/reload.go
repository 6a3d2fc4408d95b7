package dev

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jibbrjabbr/jj/pkg/script"
	"github.com/jibbrjabbr/jj/pkg/server"
)

// target is one host running a watched script.
type target struct {
	host    *server.Host
	binding *script.Binding
}

// Reloader swaps recompiled scripts into the hosts that run them.
type Reloader struct {
	logger  *slog.Logger
	compile func(path string) (*script.Program, error)

	mu      sync.Mutex
	targets map[string][]target
}

// NewReloader creates a Reloader. compile loads a script from disk; nil
// means script.Load.
func NewReloader(compile func(string) (*script.Program, error), logger *slog.Logger) *Reloader {
	if compile == nil {
		compile = script.Load
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		logger:  logger.With("component", "reloader"),
		compile: compile,
		targets: make(map[string][]target),
	}
}

// Track reloads binding on host whenever the script at path changes.
func (r *Reloader) Track(path string, host *server.Host, binding *script.Binding) {
	path = filepath.Clean(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[path] = append(r.targets[path], target{host: host, binding: binding})
}

// Paths returns the tracked script paths.
func (r *Reloader) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.targets))
	for p := range r.targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Handle reacts to one file change. It returns the number of pages asked
// to reload.
func (r *Reloader) Handle(c Change) int {
	path := filepath.Clean(c.Path)
	r.mu.Lock()
	targets := append([]target(nil), r.targets[path]...)
	r.mu.Unlock()
	if len(targets) == 0 {
		return 0
	}
	if c.Removed {
		r.logger.Warn("script removed, keeping the loaded version", "path", path)
		return 0
	}

	prog, err := r.compile(path)
	if err != nil {
		r.logger.Error("script reload failed, keeping the loaded version", "path", path, "error", err)
		return 0
	}

	reloaded := 0
	for _, t := range targets {
		t.binding.Swap(prog)
		n := t.host.Reload()
		r.logger.Info("script reloaded", "host", t.host.Name(), "path", path, "pages", n)
		reloaded += n
	}
	return reloaded
}

// Run watches the tracked scripts until ctx is done.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) error {
	w := NewWatcher(WatcherConfig{Paths: r.Paths(), Interval: interval})
	w.OnChange(func(c Change) { r.Handle(c) })
	return w.Start(ctx)
}
