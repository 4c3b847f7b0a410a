package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/mission-deck/internal/platform"
	"github.com/asheshgoplani/mission-deck/internal/statedb"
)

// watchDebounce coalesces the burst of write events SQLite produces per
// transaction (db, -wal, -shm).
const watchDebounce = 200 * time.Millisecond

// pollInterval backstops fsnotify: network filesystems and some editors
// replace files in ways that drop events.
const pollInterval = 2 * time.Second

// Watcher reloads the registry when another instance writes tab state.
// It watches the database directory with fsnotify and also polls the
// last-modified stamp, reloading when either signals a change. Reload is
// a no-op when the stored state matches memory, so the watcher is safe to
// run on the writing instance too.
type Watcher struct {
	db       *statedb.StateDB
	dbPath   string
	registry *Registry
	onReload func()

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	lastSeen int64
}

// NewWatcher creates a watcher over the database at dbPath. onReload
// fires, if non-nil, after every reload that changed the registry.
func NewWatcher(db *statedb.StateDB, dbPath string, registry *Registry, onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		db:       db,
		dbPath:   dbPath,
		registry: registry,
		onReload: onReload,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
	}
	w.lastSeen, _ = db.LastModified()
	return w, nil
}

// Start begins watching. Must be called in a goroutine; blocks until
// Stop.
func (w *Watcher) Start() {
	// Watch the directory, not the file: SQLite's WAL checkpointing
	// replaces inodes.
	dir := filepath.Dir(w.dbPath)
	if warning := platform.CheckFsnotifySupport(dir); warning != "" {
		tabLog.Warn("tab_watcher_fs_warning", slog.String("warning", warning))
	}
	if err := w.watcher.Add(dir); err != nil {
		tabLog.Warn("tab_watcher_add_failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return
	}

	var debounce *time.Timer
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-w.ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isStateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, w.checkAndReload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			tabLog.Warn("tab_watcher_error", slog.String("error", err.Error()))

		case <-poll.C:
			w.checkAndReload()
		}
	}
}

// Stop ends the watch loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
}

// isStateFile matches the database and its WAL siblings.
func (w *Watcher) isStateFile(name string) bool {
	base := filepath.Base(w.dbPath)
	got := filepath.Base(name)
	return got == base || got == base+"-wal" || got == base+"-shm"
}

// checkAndReload reloads the registry when the stored stamp moved past
// what we last saw.
func (w *Watcher) checkAndReload() {
	stamp, err := w.db.LastModified()
	if err != nil {
		tabLog.Warn("tab_watcher_stamp_failed", slog.String("error", err.Error()))
		return
	}
	w.mu.Lock()
	if stamp <= w.lastSeen {
		w.mu.Unlock()
		return
	}
	w.lastSeen = stamp
	w.mu.Unlock()

	if w.registry.Reload() {
		tabLog.Info("tab_state_reloaded", slog.Int64("stamp", stamp))
		if w.onReload != nil {
			w.onReload()
		}
	}
}
