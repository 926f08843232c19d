// Package watch triggers workflow re-runs when files in the workspace
// change. Rapid bursts of events (editor saves, build output) are
// coalesced into a single trigger.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is the default quiet period before a change batch fires.
const DefaultSettle = 500 * time.Millisecond

// Directories whose contents never trigger a re-run.
var ignoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".gantry":      true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Change is a batch of paths that changed within one settle window.
type Change struct {
	Paths []string  // Changed paths, sorted, duplicates removed
	At    time.Time // When the batch fired
}

// Watcher watches a workspace tree and emits coalesced change batches.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan Change
	errors  chan error
	done    chan struct{}
	root    string
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	closed  bool

	ignorePaths []string // Absolute paths excluded from watching
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides the quiet period before a change batch fires.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithIgnorePaths excludes specific paths (and everything under them)
// from watching, e.g. a log directory the runs themselves write to.
// Empty entries are dropped.
func WithIgnorePaths(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				w.ignorePaths = append(w.ignorePaths, abs)
			}
		}
	}
}

// NewWatcher watches root and all its subdirectories, except ignored
// ones like .git and .gantry.
func NewWatcher(root string, opts ...Option) (*Watcher, error) {
	root = filepath.Clean(root)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		changes: make(chan Change, 16),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		root:    root,
		settle:  DefaultSettle,
		pending: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()

	return w, nil
}

// addRecursive registers dir and every non-ignored subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		if w.ignoredPath(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if w.ignored(path) {
		return
	}

	// New directories must be added to the watcher so nested changes
	// keep arriving.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				select {
				case w.errors <- err:
				default:
				}
			}
		}
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write),
		event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.record(path)
	default:
		// Chmod only, not interesting.
	}
}

// ignored reports whether path lies inside an ignored directory.
func (w *Watcher) ignored(path string) bool {
	if w.ignoredPath(path) {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}

// ignoredPath reports whether path equals or lies under an explicitly
// ignored path.
func (w *Watcher) ignoredPath(path string) bool {
	if len(w.ignorePaths) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, ig := range w.ignorePaths {
		if abs == ig || strings.HasPrefix(abs, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// record adds a path to the pending batch and (re)arms the settle timer.
func (w *Watcher) record(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.pending[path] = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.flush)
}

// flush emits the pending batch.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)

	select {
	case w.changes <- Change{Paths: paths, At: time.Now()}:
	case <-w.done:
	default:
		// Changes channel full, drop the batch. The next event
		// re-arms the timer anyway.
	}
}

// Changes returns the channel of coalesced change batches.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Root returns the watched root directory.
func (w *Watcher) Root() string {
	return w.root
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

// Wait blocks until the next change batch, the context ends, or the
// watcher is closed. The boolean is false when no batch arrived.
func (w *Watcher) Wait(ctx context.Context) (Change, bool) {
	select {
	case change, ok := <-w.changes:
		return change, ok
	case <-ctx.Done():
		return Change{}, false
	case <-w.done:
		return Change{}, false
	}
}
