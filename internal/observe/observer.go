// Package observe provides ground-truth observation of claimed artifacts.
// The hallucination detector asks a single question -- does this artifact
// observably exist -- and this package answers it from the filesystem,
// either by direct stat or through an fsnotify watch that also remembers
// artifacts which appeared and were later removed.
package observe

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"dirigent/internal/logging"
)

// Observer answers artifact-existence queries for the detector.
type Observer interface {
	Exists(ctx context.Context, artifactRef string) bool
}

// =============================================================================
// STAT OBSERVER
// =============================================================================

// FileObserver checks artifact references directly against the filesystem,
// resolving relative references under Root.
type FileObserver struct {
	Root string
}

// NewFileObserver creates a stat-based observer rooted at dir.
func NewFileObserver(dir string) *FileObserver {
	return &FileObserver{Root: dir}
}

// Exists reports whether the referenced file or directory is present.
func (o *FileObserver) Exists(_ context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.Root, path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// WATCH OBSERVER
// =============================================================================

// WatchObserver layers an fsnotify watch over the stat check. It records
// every create/write event under the watched root, so an artifact that a
// worker produced and something else consumed still counts as observed.
type WatchObserver struct {
	root    string
	watcher *fsnotify.Watcher
	log     *zap.Logger

	mu   sync.RWMutex
	seen map[string]bool

	done chan struct{}
}

// NewWatchObserver starts watching root and its existing subdirectories.
func NewWatchObserver(root string) (*WatchObserver, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	o := &WatchObserver{
		root:    root,
		watcher: watcher,
		log:     logging.L(logging.CategoryObserver),
		seen:    map[string]bool{},
		done:    make(chan struct{}),
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go o.run()
	return o, nil
}

func (o *WatchObserver) run() {
	for {
		select {
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				o.mu.Lock()
				o.seen[ev.Name] = true
				o.mu.Unlock()

				// New directories need their own watch.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = o.watcher.Add(ev.Name)
				}
			}
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			o.log.Warn("watch error", zap.Error(err))
		case <-o.done:
			return
		}
	}
}

// Exists reports whether the artifact is currently present or was observed
// to appear while the watch was active.
func (o *WatchObserver) Exists(_ context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.root, path)
	}
	if _, err := os.Stat(path); err == nil {
		return true
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seen[path]
}

// Close stops the watch goroutine and releases the watcher.
func (o *WatchObserver) Close() error {
	close(o.done)
	return o.watcher.Close()
}
