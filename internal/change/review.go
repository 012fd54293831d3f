package change

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// ErrReviewBusy is returned when review is requested while a turn is
// still processing.
var ErrReviewBusy = errors.New("cannot review while a turn is processing")

// ErrNothingToReview is returned when the tracker is empty.
var ErrNothingToReview = errors.New("no pending changes to review")

// Suppressor mutes stale detection for a path during an internal write.
// The watcher implements it.
type Suppressor interface {
	Suppress(path string)
	Unsuppress(path string)
}

// Review walks the tracker front to back, one change at a time.
type Review struct {
	tracker  *Tracker
	busy     func() bool
	suppress Suppressor
}

// NewReview creates a review session source. busy reports whether a
// turn is currently processing; nil means never busy.
func NewReview(tracker *Tracker, busy func() bool) *Review {
	return &Review{tracker: tracker, busy: busy}
}

// SuppressWrites brackets reverts with the suppressor so restoring a
// snapshot does not mark the remaining snapshots stale.
func (r *Review) SuppressWrites(s Suppressor) {
	r.suppress = s
}

// Start validates that review may begin and returns the first change.
func (r *Review) Start() (types.PendingChange, error) {
	if r.busy != nil && r.busy() {
		return types.PendingChange{}, ErrReviewBusy
	}
	changes := r.tracker.List()
	if len(changes) == 0 {
		return types.PendingChange{}, ErrNothingToReview
	}
	return changes[0], nil
}

// Keep resolves the current change without touching the file and
// returns the next one, if any.
func (r *Review) Keep() (types.PendingChange, bool) {
	r.tracker.shift()
	changes := r.tracker.List()
	if len(changes) == 0 {
		return types.PendingChange{}, false
	}
	return changes[0], true
}

// Revert restores the snapshot, then advances. A file that did not
// exist before the mutation is deleted.
func (r *Review) Revert() (types.PendingChange, bool, error) {
	change, ok := r.tracker.shift()
	if !ok {
		return types.PendingChange{}, false, ErrNothingToReview
	}

	if r.suppress != nil {
		r.suppress.Suppress(change.Path)
		defer r.suppress.Unsuppress(change.Path)
	}

	var err error
	if change.Existed {
		err = os.WriteFile(change.Path, change.Before, 0644)
	} else {
		err = os.Remove(change.Path)
		if os.IsNotExist(err) {
			err = nil
		}
	}
	if err != nil {
		logging.Warn().Str("path", change.Path).Err(err).Msg("revert failed")
		err = fmt.Errorf("revert %s: %w", change.Path, err)
	}

	changes := r.tracker.List()
	if len(changes) == 0 {
		return types.PendingChange{}, false, err
	}
	return changes[0], true, err
}

// AcceptAll drains the tracker without reverting anything and returns
// how many changes were resolved.
func (r *Review) AcceptAll() int {
	n := r.tracker.Len()
	r.tracker.Clear()
	return n
}

// Preview renders a readable patch of one pending change for the
// review prompt. Stale snapshots are flagged in the header.
func Preview(change types.PendingChange) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", change.Path, change.Tool)
	if change.Stale {
		sb.WriteString(" [modified outside the session]")
	}
	sb.WriteString("\n")

	dmp := diffmatchpatch.New()
	before := string(change.Before)
	after := string(change.After)
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
