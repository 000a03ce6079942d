package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"meshnerd/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// CatalogWatcher watches a catalog directory for YAML changes and hot
// reloads the catalog. Rapid editor saves are debounced; a reload that
// fails validation keeps the previous snapshot live.
type CatalogWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	catalog     *Catalog
	dir         string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats CatalogWatcherStats
}

// CatalogWatcherStats tracks watcher activity for debugging.
type CatalogWatcherStats struct {
	EventsSeen    int
	Reloads       int
	ReloadErrors  int
	LastEventTime time.Time
	LastEventPath string
}

// NewCatalogWatcher creates a watcher that reloads catalog from dir.
func NewCatalogWatcher(dir string, catalog *Catalog) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &CatalogWatcher{
		watcher:     watcher,
		catalog:     catalog,
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a
// goroutine until Stop or context cancellation.
func (cw *CatalogWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := cw.watcher.Add(cw.dir); err != nil {
		logging.Get(logging.CategoryCatalog).Warn("CatalogWatcher: initial watch failed: %v", err)
	} else {
		logging.Catalog("CatalogWatcher: watching directory: %s", cw.dir)
	}

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (cw *CatalogWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh

	if err := cw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryCatalog).Error("CatalogWatcher: error closing watcher: %v", err)
	}
	logging.Catalog("CatalogWatcher: stopped")
}

// IsWatching reports whether the event loop is running.
func (cw *CatalogWatcher) IsWatching() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.running
}

// GetStats returns a copy of the current watcher statistics.
func (cw *CatalogWatcher) GetStats() CatalogWatcherStats {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.stats
}

func (cw *CatalogWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Catalog("CatalogWatcher: context cancelled")
			return

		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryCatalog).Error("CatalogWatcher error: %v", err)

		case <-debounceTicker.C:
			cw.processDebounced()
		}
	}
}

func (cw *CatalogWatcher) handleEvent(event fsnotify.Event) {
	lower := strings.ToLower(event.Name)
	if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.CatalogDebug("CatalogWatcher: %s changed (%s)", event.Name, event.Op)

	cw.mu.Lock()
	cw.stats.EventsSeen++
	cw.stats.LastEventTime = time.Now()
	cw.stats.LastEventPath = event.Name
	cw.debounceMap[event.Name] = time.Now()
	cw.mu.Unlock()
}

func (cw *CatalogWatcher) processDebounced() {
	cw.mu.Lock()
	now := time.Now()
	settled := false
	for path, eventTime := range cw.debounceMap {
		if now.Sub(eventTime) >= cw.debounceDur {
			delete(cw.debounceMap, path)
			settled = true
		}
	}
	cw.mu.Unlock()

	if settled {
		cw.Reload()
	}
}

// Reload re-reads the whole catalog directory and swaps the snapshot.
// Any load or validation error leaves the previous snapshot in place.
func (cw *CatalogWatcher) Reload() {
	defs, err := LoadDirectory(cw.dir)
	if err != nil {
		logging.Get(logging.CategoryCatalog).Error("CatalogWatcher: reload failed: %v", err)
		cw.mu.Lock()
		cw.stats.ReloadErrors++
		cw.mu.Unlock()
		return
	}
	if err := cw.catalog.Replace(defs); err != nil {
		logging.Get(logging.CategoryCatalog).Error("CatalogWatcher: reload rejected: %v", err)
		cw.mu.Lock()
		cw.stats.ReloadErrors++
		cw.mu.Unlock()
		return
	}

	cw.mu.Lock()
	cw.stats.Reloads++
	cw.mu.Unlock()
	logging.Catalog("CatalogWatcher: reloaded %d workflows", len(defs))
}
