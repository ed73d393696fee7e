package tuneables

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/logger"
)

// Loader owns the live Document, reloaded once per bridge cycle and, as a
// cheap extra trigger, on fsnotify write events to tuneables.json. Watcher
// pattern (debounce timer, started-then-stopped, reset on events) is lifted
// from echoryn's memory-core manager auto-sync watcher.
type Loader struct {
	path string

	mu  sync.RWMutex
	doc Document

	watcher *fsnotify.Watcher
	closeCh chan struct{}

	onReload func(Document)
}

// NewLoader reads path if present, else writes and uses Default().
func NewLoader(dir *statedir.Dir) (*Loader, error) {
	path := dir.Tuneables()
	l := &Loader{path: path, doc: Default(), closeCh: make(chan struct{})}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the live document.
func (l *Loader) Current() Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.doc
}

// OnReload installs a callback invoked after every successful reload, used
// by bridge cycle wiring to push fresh config into the engine/gate/manager.
func (l *Loader) OnReload(fn func(Document)) { l.onReload = fn }

// Reload re-reads tuneables.json, falling back to the last-known-good
// document on any I/O or parse error so a malformed edit never crashes the
// daemon mid-run.
func (l *Loader) Reload() error {
	var doc Document
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		doc = Default()
		if werr := statedir.WriteJSONAtomic(l.path, doc); werr != nil {
			return werr
		}
	} else {
		doc = Default()
		if err := statedir.ReadJSON(l.path, &doc); err != nil {
			logger.Warn("[Tuneables] reload failed, keeping previous document: %v", err)
			return nil
		}
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	if l.onReload != nil {
		l.onReload(doc)
	}
	return nil
}

// Set edits a single value in the current document by JSON-path-like
// dotted key (e.g. "advisory_gate.note_threshold") and persists it,
// satisfying sparkctl's tuneables set subcommand. Only primitive leaves
// under the documented sections are supported.
func (l *Loader) Set(path string, value interface{}) error {
	doc := l.Current()
	if err := setField(&doc, path, value); err != nil {
		return err
	}
	if err := statedir.WriteJSONAtomic(l.path, doc); err != nil {
		return err
	}
	return l.Reload()
}

// StartWatcher begins an fsnotify watch on the tuneables file's directory,
// debouncing writes before calling Reload, mirroring echoryn's watcher.
func (l *Loader) StartWatcher(ctx context.Context, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = w
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return err
	}
	if debounce <= 0 {
		debounce = 1500 * time.Millisecond
	}

	go func() {
		timer := time.NewTimer(0)
		timer.Stop()
		defer timer.Stop()
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(l.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					timer.Reset(debounce)
				}
			case <-timer.C:
				if err := l.Reload(); err != nil {
					logger.Warn("[Tuneables] watcher-triggered reload failed: %v", err)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			case <-l.closeCh:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher goroutine, if running.
func (l *Loader) Close() {
	close(l.closeCh)
	if l.watcher != nil {
		l.watcher.Close()
	}
}
