// Package watch wraps fsnotify into the raw add/change/unlink events the
// Job Scheduler consumes, recursively watching new directories as they
// appear. If fsnotify cannot be initialized, Start returns the error
// directly; callers fall back to periodic reconcile runs rather than a
// polling watcher.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/knowdisk/knowdisk/internal/gitignore"
	"github.com/knowdisk/knowdisk/internal/scheduler"
)

// Event is a single raw filesystem change, already filtered against
// .gitignore and the default exclusion list.
type Event struct {
	Path      string
	Type      scheduler.EventType
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// PollInterval is not read by Watcher; there is no polling fallback.
	PollInterval time.Duration

	// IgnorePatterns are additional gitignore-syntax patterns to exclude,
	// beyond the source tree's own .gitignore.
	IgnorePatterns []string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{PollInterval: 5 * time.Second}
}

// Watcher observes a source root and emits raw Events. Implementations
// must be safe to Stop multiple times.
type Watcher struct {
	root      string
	opts      Options
	gitignore *gitignore.Matcher
	fsw       *fsnotify.Watcher
	events    chan Event
	errors    chan error
	stopOnce  sync.Once
	stopCh    chan struct{}
	logger    *slog.Logger
}

// New creates a Watcher rooted at root. It always attempts fsnotify; the
// caller should check Start's returned error and fall back to periodic
// RunScheduledReconcile calls if fsnotify is unavailable in this
// environment.
func New(root string, opts Options, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	matcher := gitignore.New()
	for _, p := range opts.IgnorePatterns {
		matcher.AddPattern(p)
	}
	matcher.AddPattern(".knowdisk/")
	matcher.AddPattern(".knowdisk/**")
	_ = matcher.AddFromFile(filepath.Join(root, ".gitignore"), "")

	return &Watcher{
		root:      root,
		opts:      opts,
		gitignore: matcher,
		events:    make(chan Event, 1000),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		logger:    logger,
	}
}

// Events returns the channel of filtered filesystem events. Closed on Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns non-fatal watcher errors. Closed on Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start begins watching w.root recursively. Blocks until ctx is cancelled
// or Stop is called; run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.closeChannels()
			return nil
		case <-w.stopCh:
			w.closeChannels()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				w.closeChannels()
				return nil
			}
			w.handleFsEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				continue
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watch: error channel full, dropping", "error", err)
			}
		}
	}
}

// Stop halts the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) closeChannels() {
	close(w.events)
	close(w.errors)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && w.gitignore.Match(rel, true) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("watch: failed to add directory", "path", path, "error", addErr)
		}
		return nil
	})
}

func (w *Watcher) handleFsEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err == nil && rel != "." && w.gitignore.Match(rel, false) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return // directories themselves are never indexed
		}
		w.emit(ev.Name, scheduler.EventAdd)
	case ev.Op&fsnotify.Write != 0:
		w.emit(ev.Name, scheduler.EventChange)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.emit(ev.Name, scheduler.EventUnlink)
	}
}

func (w *Watcher) emit(path string, eventType scheduler.EventType) {
	select {
	case w.events <- Event{Path: path, Type: eventType, Timestamp: time.Now()}:
	default:
		w.logger.Warn("watch: event channel full, dropping", "path", path)
	}
}
