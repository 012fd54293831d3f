// Package change tracks undo snapshots of workspace mutations and
// drives Review Mode over them.
package change

import (
	"sync"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

// Tracker maintains the ordered list of unresolved pending changes.
type Tracker struct {
	mu      sync.Mutex
	changes []types.PendingChange
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record appends a snapshot. Satisfies the tool runner's ChangeRecorder.
func (t *Tracker) Record(change types.PendingChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = append(t.changes, change)
}

// List returns a copy of the unresolved changes in arrival order.
func (t *Tracker) List() []types.PendingChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.PendingChange, len(t.changes))
	copy(out, t.changes)
	return out
}

// Len returns the number of unresolved changes.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.changes)
}

// Clear drops all unresolved changes, e.g. on workspace replacement.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = nil
}

// markStale flags every unresolved snapshot of path as externally
// modified.
func (t *Tracker) markStale(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.changes {
		if t.changes[i].Path == path {
			t.changes[i].Stale = true
		}
	}
}

// shift removes and returns the oldest unresolved change.
func (t *Tracker) shift() (types.PendingChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.changes) == 0 {
		return types.PendingChange{}, false
	}
	change := t.changes[0]
	t.changes = t.changes[1:]
	return change, true
}

// TrackedPaths returns the distinct paths with unresolved snapshots.
func (t *Tracker) TrackedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[string]bool, len(t.changes))
	var paths []string
	for _, c := range t.changes {
		if !seen[c.Path] {
			seen[c.Path] = true
			paths = append(paths, c.Path)
		}
	}
	return paths
}
