// Package watcher reports debounced changes to individual files.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceInterval = 500 * time.Millisecond

// ChangeCallback is called once per settled burst of writes to a watched file.
type ChangeCallback func(path string)

// Watcher monitors files for content changes.
type Watcher struct {
	mu       sync.RWMutex
	watchers map[string]*fileWatcher // absolute path → watcher
	callback ChangeCallback
	logger   *zap.Logger
	debounce time.Duration
}

type fileWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}

	mu   sync.Mutex
	last fingerprint
}

// fingerprint identifies a file version without reading it.
type fingerprint struct {
	size    int64
	modTime time.Time
	exists  bool
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{size: info.Size(), modTime: info.ModTime(), exists: true}
}

// New creates a new file watcher.
func New(callback ChangeCallback, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watchers: make(map[string]*fileWatcher),
		callback: callback,
		logger:   logger,
		debounce: debounceInterval,
	}
}

// Watch starts watching path. The parent directory is watched so that
// editors which save by rename are still seen.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.RLock()
	_, exists := w.watchers[abs]
	w.mu.RUnlock()
	if exists {
		return nil
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return err
	}

	fw := &fileWatcher{
		path:      abs,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
		last:      stat(abs),
	}

	w.mu.Lock()
	w.watchers[abs] = fw
	w.mu.Unlock()

	// Run the event loop.
	go w.watchLoop(fw)
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	fw, ok := w.watchers[abs]
	if ok {
		delete(w.watchers, abs)
	}
	w.mu.Unlock()

	if ok {
		close(fw.cancel)
		fw.fsWatcher.Close()
		<-fw.done
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fw *fileWatcher) {
	defer close(fw.done)
	var timer *time.Timer

	for {
		select {
		case <-fw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.recheck(fw)
			})

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.String("path", fw.path), zap.Error(err))
		}
	}
}

// recheck notifies if the file changed since the last notification. A
// removed file is not reported.
func (w *Watcher) recheck(fw *fileWatcher) {
	select {
	case <-fw.cancel:
		return
	default:
	}

	cur := stat(fw.path)
	fw.mu.Lock()
	changed := cur.exists && cur != fw.last
	fw.last = cur
	fw.mu.Unlock()

	if changed && w.callback != nil {
		w.logger.Info("watched file changed", zap.String("path", fw.path))
		w.callback(fw.path)
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchers))
	for p := range w.watchers {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.Unwatch(p)
	}
}
