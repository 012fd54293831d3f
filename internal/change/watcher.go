package change

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mosaic-ai/mosaic/internal/logging"
)

// suppressGrace keeps a lifted suppression effective long enough for
// fsnotify events already queued for the suppressed write to drain.
const suppressGrace = 200 * time.Millisecond

// Watcher observes the directories of tracked snapshots and marks a
// snapshot stale when its file changes outside the tool runner.
type Watcher struct {
	watcher *fsnotify.Watcher
	tracker *Tracker
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool

	mu         sync.Mutex
	dirs       map[string]bool
	suppressed map[string]int
}

// NewWatcher creates a watcher over the tracker's snapshots.
func NewWatcher(tracker *Tracker) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:    fsw,
		tracker:    tracker,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		dirs:       make(map[string]bool),
		suppressed: make(map[string]int),
	}, nil
}

// Track registers a path whose snapshot should be invalidated on
// external writes. Directories are watched, not files; files may be
// replaced by rename.
func (w *Watcher) Track(path string) {
	dir := filepath.Dir(path)
	w.mu.Lock()
	known := w.dirs[dir]
	if !known {
		w.dirs[dir] = true
	}
	w.mu.Unlock()
	if known {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		logging.Debug().Str("dir", dir).Err(err).Msg("watch add failed")
	}
}

// Suppress ignores events for path until a matching Unsuppress. The
// tool runner and Review Mode bracket their own writes with it so only
// external modifications mark snapshots stale. Calls nest.
func (w *Watcher) Suppress(path string) {
	w.mu.Lock()
	w.suppressed[path]++
	w.mu.Unlock()
}

// Unsuppress resumes stale marking for path after the grace period.
func (w *Watcher) Unsuppress(path string) {
	time.AfterFunc(suppressGrace, func() {
		w.mu.Lock()
		if w.suppressed[path] > 0 {
			w.suppressed[path]--
			if w.suppressed[path] == 0 {
				delete(w.suppressed, path)
			}
		}
		w.mu.Unlock()
	})
}

// Start begins dispatching events.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.handle(ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("change watcher error")
		}
	}
}

func (w *Watcher) handle(path string) {
	w.mu.Lock()
	skip := w.suppressed[path] > 0
	w.mu.Unlock()
	if skip {
		return
	}
	w.tracker.markStale(path)
}

// Stop halts dispatch and closes the underlying watcher. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
