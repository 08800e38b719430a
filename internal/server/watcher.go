package server

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// catalogDebounce collapses the bursts of events editors emit on save.
const catalogDebounce = 100 * time.Millisecond

const feedChange = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher reports changes to feed files under the catalog directory. Hidden
// files and directories are ignored.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	onChange func(relPath string)
	debug    bool

	quit     chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches root and every non-hidden directory below it.
// onChange gets the path of the last changed file, relative to root, once
// the burst of events settles.
func NewWatcher(root string, onChange func(string), debug bool) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, root: root, onChange: onChange, debug: debug, quit: make(chan struct{})}
	if err := w.watchTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) watchTree(top string) error {
	return filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.IsDir():
			return nil
		case path != top && hidden(path):
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return err
		}
		if w.debug {
			log.Printf("[Watch] Watching %s", path)
		}
		return nil
	})
}

// feedPath reports the relative path of a changed feed file. New
// directories are added to the watch and not reported.
func (w *Watcher) feedPath(ev fsnotify.Event) (string, bool) {
	if ev.Op&feedChange == 0 || hidden(ev.Name) {
		return "", false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				log.Printf("[Watch] Failed to watch %s: %v", ev.Name, err)
			}
			return "", false
		}
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return ev.Name, true
	}
	return rel, true
}

// Start delivers change callbacks from a background goroutine until Stop.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	settle := time.NewTimer(catalogDebounce)
	settle.Stop()
	defer settle.Stop()

	var last string
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if rel, ok := w.feedPath(ev); ok {
				last = rel
				settle.Reset(catalogDebounce)
			}
		case <-settle.C:
			if w.debug {
				log.Printf("[Watch] Catalog changed: %s", last)
			}
			w.onChange(last)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("[Watch] Error: %v", err)
		case <-w.quit:
			return
		}
	}
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.quit)
		err = w.fs.Close()
	})
	return err
}
