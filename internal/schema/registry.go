package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// ErrNoSnapshot is returned by Reload when no file path is configured.
var ErrNoSnapshot = errors.New("schema registry has no source file")

// Registry serves the current schema snapshot. Readers never block; a reload
// builds a new snapshot off to the side and swaps it in.
type Registry struct {
	path    string
	current atomic.Pointer[Snapshot]
	group   singleflight.Group
	logger  *slog.Logger

	// debounce delays reloads after file events. Editors often write a file in
	// several steps.
	debounce time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDebounce sets the delay between a file event and the reload it causes.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) { r.debounce = d }
}

// NewRegistry loads the schema file at path and returns a registry serving it.
func NewRegistry(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:     path,
		logger:   slog.New(slog.DiscardHandler),
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}

	snap, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r.current.Store(snap)
	r.logger.Debug("schema loaded", "path", path, "version", snap.Version(),
		"database_tables", len(snap.DatabaseTables()), "derived_tables", len(snap.DerivedTables()))
	return r, nil
}

// NewStaticRegistry returns a registry that always serves snap. Reload fails
// with ErrNoSnapshot.
func NewStaticRegistry(snap *Snapshot) *Registry {
	r := &Registry{logger: slog.New(slog.DiscardHandler)}
	r.current.Store(snap)
	return r
}

// Current returns the snapshot in effect.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Path returns the schema file the registry reads.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the schema file. Concurrent calls share one load. On
// failure the previous snapshot stays in effect.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	if r.path == "" {
		return nil, ErrNoSnapshot
	}

	ch := r.group.DoChan("reload", func() (any, error) {
		snap, err := LoadFile(r.path)
		if err != nil {
			return nil, err
		}
		prev := r.current.Swap(snap)
		if prev == nil || prev.Version() != snap.Version() {
			r.logger.Info("schema reloaded", "path", r.path, "version", snap.Version())
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to reload schema: %w", res.Err)
		}
		return res.Val.(*Snapshot), nil
	}
}

// Watch reloads the schema whenever its file changes, until ctx is done.
// The parent directory is watched so that atomic renames by editors are seen.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return ErrNoSnapshot
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch schema directory: %w", err)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(r.debounce, func() {
				r.logger.Debug("schema file changed", "file", event.Name)
				if _, err := r.Reload(ctx); err != nil {
					r.logger.Error("schema reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher error", "error", err)
		}
	}
}
