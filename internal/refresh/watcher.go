package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Watcher reports archives under a source root that were created,
// written or renamed into place.
type Watcher struct {
	root      string
	match     glob.Glob
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	log       *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewWatcher watches root for keys matching pattern, the same glob used
// for discovery.
func NewWatcher(root, pattern string, opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:      abs,
		match:     g,
		fs:        fsw,
		debouncer: NewDebouncer(opts.Debounce),
		log:       opts.Logger,
	}, nil
}

// Changes returns batches of changed keys, relative to the root with
// forward slashes.
func (w *Watcher) Changes() <-chan []string {
	return w.debouncer.Output()
}

// Run watches until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.Close()
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	w.log.Info("watching source root", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn("cannot watch new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	key := filepath.ToSlash(rel)
	if !w.match.Match(key) {
		return
	}
	w.log.Debug("archive changed", slog.String("key", key), slog.String("op", ev.Op.String()))
	w.debouncer.Add(key)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fs.Add(p)
	})
}

// Close stops watching. Safe to call multiple times.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	return w.fs.Close()
}
