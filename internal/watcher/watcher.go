// Package watcher watches seed files with fsnotify and reports debounced changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/shikibetsu/internal/extract"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches the directories behind seed file patterns and invokes callbacks
// when a matching file is written or removed.
type Watcher struct {
	patterns []string
	onChange func(path string)
	onRemove func(path string)
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
	timers  map[string]*time.Timer // pending onChange per path
	roots   map[string]bool        // watched base dir -> recursive

	quit     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (file events, added directories).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before onChange fires for a file.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for seed paths or doublestar patterns.
// onChange fires once per burst of writes to a matching file; onRemove when it is deleted.
func NewWatcher(patterns []string, onChange, onRemove func(path string), opts ...WatcherOption) *Watcher {
	clean := make([]string, len(patterns))
	for i, p := range patterns {
		clean[i] = filepath.Clean(p)
	}
	w := &Watcher{
		patterns: clean,
		onChange: onChange,
		onRemove: onRemove,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		timers:   make(map[string]*time.Timer),
		roots:    make(map[string]bool),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = watcher
	w.running = true
	w.logger.Debug("watcher starting", zap.Strings("patterns", w.patterns), zap.Duration("debounce", w.debounce))
	for _, p := range w.patterns {
		base, recursive := patternRoot(p)
		if err := w.addRootLocked(base, recursive); err != nil {
			_ = w.fsw.Close()
			w.fsw = nil
			w.running = false
			w.mu.Unlock()
			return err
		}
	}
	events, errs := watcher.Events, watcher.Errors
	w.mu.Unlock()
	go w.run(ctx, events, errs)
	return nil
}

// patternRoot returns the directory to watch for a pattern and whether matches may be nested.
// A plain file path watches its parent, since editors replace files by rename.
func patternRoot(pattern string) (string, bool) {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	base = filepath.FromSlash(base)
	if rest == "" || !strings.ContainsAny(rest, "*?[{") {
		return filepath.Dir(pattern), false
	}
	return base, strings.Contains(rest, "/") || strings.Contains(rest, "**")
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matches(path) {
			w.debounceChange(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.matches(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// handleNewDirectory watches a directory created under a recursive root and
// reports the seed files already inside it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	watcher := w.fsw
	recursive := false
	for root, rec := range w.roots {
		if rec && inDir(root, dirPath) {
			recursive = true
			break
		}
	}
	w.mu.Unlock()
	if watcher == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if w.matches(path) {
			w.debounceChange(path)
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	return extract.Supported(path) && extract.Match(w.patterns, path)
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) debounceChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.logger.Debug("watcher seed file changed (debounced)", zap.String("path", path))
		if w.onChange != nil {
			w.onChange(path)
		}
	})
	w.timers[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) addRootLocked(root string, recursive bool) error {
	root = filepath.Clean(root)
	if _, ok := w.roots[root]; ok && !recursive {
		return nil
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.roots[root] = false
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return err
	}
	w.roots[root] = true
	return nil
}

// Roots returns the watched base directories.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.roots))
	for r := range w.roots {
		out = append(out, r)
	}
	return out
}

// SyncExistingFiles reports every existing seed file matching the patterns through onChange.
// Call this after Start() to import files that were present before the watcher started.
func (w *Watcher) SyncExistingFiles() error {
	paths, err := extract.Expand(w.patterns)
	if err != nil {
		return err
	}
	w.logger.Debug("watcher syncing existing files", zap.Int("files", len(paths)))
	for _, p := range paths {
		if w.onChange != nil {
			w.onChange(p)
		}
	}
	return nil
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.running = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.quit) })
}
