// Package watch imports record files as they appear in a directory tree and
// classifies them right away.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher reports files below a directory once writes to them have stopped.
// Files are handled one at a time, in the order they settled.
type Watcher struct {
	dir      string
	match    func(path string) bool
	handle   Handler
	debounce time.Duration
	logger   logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]time.Time
	hashes  map[string]string
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher over dir. Only files for which match returns true are
// handled.
func New(dir string, match func(path string) bool, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		match:    match,
		handle:   handle,
		debounce: DefaultDebounce,
		logger:   logrus.StandardLogger(),
		pending:  make(map[string]time.Time),
		hashes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. Files already present are not handled; new
// files and rewritten files are. A handler error is logged and watching goes on.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.dir); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{"dir": w.dir, "debounce": w.debounce}).Info("Watching for record files")

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.onEvent(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				if ctx.Err() != nil {
					return nil
				}
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) onEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, event.Name); err != nil {
				w.logger.WithError(err).WithField("path", event.Name).Warn("Failed to watch new directory")
			}
			return
		}
	}
	if !w.match(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns the pending files that have been quiet for the
// debounce period, oldest first.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return w.pending[ready[i]].Before(w.pending[ready[j]])
	})
	for _, path := range ready {
		delete(w.pending, path)
	}
	return ready
}

func (w *Watcher) process(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.WithError(err).WithField("path", path).Warn("Failed to read record file")
		return
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if w.hashes[path] == hash {
		return
	}
	w.hashes[path] = hash

	if err := w.handle(ctx, path); err != nil {
		w.logger.WithError(err).WithField("path", path).Error("Failed to process record file")
	}
}
