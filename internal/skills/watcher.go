package skills

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the skill set when anything under a watched root changes.
// fsnotify does not recurse, so each discovered skill directory is watched
// alongside the roots and the watch list refreshes after every reload.
type Watcher struct {
	loader *Loader
	fw     *fsnotify.Watcher
	done   chan struct{}
}

func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{loader: loader, fw: fw, done: make(chan struct{})}, nil
}

// Start begins watching. Call after the first Discover so the skill
// directories are known.
func (w *Watcher) Start() {
	w.refreshWatches()
	go w.run()
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) run() {
	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.done:
			return
		case _, ok := <-w.fw.Events:
			if !ok {
				return
			}
			// Editors fire bursts of events per save; coalesce them.
			debounce.Reset(reloadDebounce)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("skills watcher error", "error", err)
		case <-debounce.C:
			w.loader.Discover()
			w.refreshWatches()
			slog.Debug("skills reloaded", "count", len(w.loader.List(true)))
		}
	}
}

func (w *Watcher) refreshWatches() {
	for _, r := range w.loader.roots {
		_ = w.fw.Add(r.dir)
	}
	for _, sk := range w.loader.List(true) {
		_ = w.fw.Add(filepath.Dir(sk.Path))
	}
}
