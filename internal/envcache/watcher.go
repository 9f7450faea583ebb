package envcache

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// watcher proactively invalidates cache entries when the manifest file
// backing them changes on disk, instead of waiting for the next Lookup to
// notice a newer mtime. Failure to start the watcher is non-fatal: the
// cache still works correctly off TTL+mtime checks on the read path, just
// without the proactive push (SPEC_FULL.md, "Environment cache
// opportunistic invalidation").
type watcher struct {
	fsw *fsnotify.Watcher
	log hclog.Logger

	mu      sync.Mutex
	byPath  map[string][]Key
	cache   *Cache
}

// WatchSource starts (or extends) file-change watching for entry's
// SourcePath, invalidating entry.Key in the cache whenever that path is
// written to or removed. If the watcher can't be started, it logs a
// warning and returns without watching; the cache keeps working.
func (c *Cache) WatchSource(logger hclog.Logger, e *Entry) {
	if e.SourcePath == "" {
		return
	}
	if c.watcher == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			if logger != nil {
				logger.Warn("environment cache: could not start file watcher, falling back to TTL-only invalidation", "error", err)
			}
			return
		}
		c.watcher = &watcher{fsw: fsw, log: logger, byPath: map[string][]Key{}, cache: c}
		go c.watcher.run()
	}
	c.watcher.add(e.SourcePath, e.Key)
}

func (w *watcher) add(path string, key Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, tracked := w.byPath[path]; !tracked {
		if err := w.fsw.Add(path); err != nil {
			if w.log != nil {
				w.log.Warn("environment cache: could not watch manifest path", "path", path, "error", err)
			}
			return
		}
	}
	w.byPath[path] = append(w.byPath[path], key)
}

func (w *watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			keys := w.byPath[event.Name]
			w.mu.Unlock()
			for _, k := range keys {
				w.cache.Invalidate(k)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("environment cache: file watcher error", "error", err)
			}
		}
	}
}

// Close stops the background watcher, if one was started.
func (c *Cache) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.fsw.Close()
}
