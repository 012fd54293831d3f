package change

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

func TestTrackerOrder(t *testing.T) {
	tr := NewTracker()
	tr.Record(types.PendingChange{Path: "/a", Tool: "write"})
	tr.Record(types.PendingChange{Path: "/b", Tool: "edit"})
	tr.Record(types.PendingChange{Path: "/a", Tool: "edit"})

	changes := tr.List()
	require.Len(t, changes, 3)
	assert.Equal(t, "/a", changes[0].Path)
	assert.Equal(t, "/b", changes[1].Path)
	assert.Equal(t, []string{"/a", "/b"}, tr.TrackedPaths())
}

func TestReviewKeepAdvances(t *testing.T) {
	tr := NewTracker()
	tr.Record(types.PendingChange{Path: "/a"})
	tr.Record(types.PendingChange{Path: "/b"})

	rev := NewReview(tr, nil)
	first, err := rev.Start()
	require.NoError(t, err)
	assert.Equal(t, "/a", first.Path)

	next, more := rev.Keep()
	require.True(t, more)
	assert.Equal(t, "/b", next.Path)

	_, more = rev.Keep()
	assert.False(t, more)
	assert.Equal(t, 0, tr.Len())
}

func TestReviewRevertRestoresBytes(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("after"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{
		Path:    path,
		Existed: true,
		Before:  []byte("before"),
		After:   []byte("after"),
	})

	rev := NewReview(tr, nil)
	_, more, err := rev.Revert()
	require.NoError(t, err)
	assert.False(t, more)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
}

func TestReviewRevertDeletesCreatedFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "created.txt")
	require.NoError(t, os.WriteFile(path, []byte("new"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{Path: path, Existed: false, After: []byte("new")})

	rev := NewReview(tr, nil)
	_, _, err := rev.Revert()
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReviewRefusedWhileProcessing(t *testing.T) {
	tr := NewTracker()
	tr.Record(types.PendingChange{Path: "/a"})

	rev := NewReview(tr, func() bool { return true })
	_, err := rev.Start()
	assert.ErrorIs(t, err, ErrReviewBusy)
}

func TestReviewStartEmpty(t *testing.T) {
	rev := NewReview(NewTracker(), nil)
	_, err := rev.Start()
	assert.ErrorIs(t, err, ErrNothingToReview)
}

func TestReviewAcceptAll(t *testing.T) {
	tr := NewTracker()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "kept.txt")
	require.NoError(t, os.WriteFile(path, []byte("kept"), 0644))
	tr.Record(types.PendingChange{Path: path, Existed: false, After: []byte("kept")})
	tr.Record(types.PendingChange{Path: "/other"})

	rev := NewReview(tr, nil)
	assert.Equal(t, 2, rev.AcceptAll())
	assert.Equal(t, 0, tr.Len())

	// accept-all never reverts
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestPreview(t *testing.T) {
	out := Preview(types.PendingChange{
		Path:   "/x/f.txt",
		Tool:   "edit",
		Before: []byte("one\ntwo\n"),
		After:  []byte("one\nthree\n"),
	})
	assert.Contains(t, out, "/x/f.txt (edit)")
	assert.Contains(t, out, "-two")
	assert.Contains(t, out, "+three")
}

func TestPreviewStaleFlag(t *testing.T) {
	out := Preview(types.PendingChange{Path: "/x", Tool: "write", Stale: true})
	assert.Contains(t, out, "[modified outside the session]")
}

func TestWatcherMarksStale(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{Path: path, Existed: true, Before: []byte("v0"), After: []byte("v1")})

	w, err := NewWatcher(tr)
	require.NoError(t, err)
	defer w.Stop()
	w.Track(path)
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("external"), 0644))

	assert.Eventually(t, func() bool {
		return tr.List()[0].Stale
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherSuppress(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "own.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{Path: path})

	w, err := NewWatcher(tr)
	require.NoError(t, err)
	defer w.Stop()
	w.Track(path)
	w.Start()

	w.Suppress(path)
	require.NoError(t, os.WriteFile(path, []byte("engine write"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.False(t, tr.List()[0].Stale)
	w.Unsuppress(path)
}

type recordingSuppressor struct {
	suppressed   []string
	unsuppressed []string
}

func (s *recordingSuppressor) Suppress(path string) {
	s.suppressed = append(s.suppressed, path)
}

func (s *recordingSuppressor) Unsuppress(path string) {
	s.unsuppressed = append(s.unsuppressed, path)
}

func TestReviewRevertSuppressesOwnRestore(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "r.txt")
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{Path: path, Existed: true, Before: []byte("v1"), After: []byte("v2")})

	sup := &recordingSuppressor{}
	rv := NewReview(tr, nil)
	rv.SuppressWrites(sup)

	_, _, err := rv.Revert()
	require.NoError(t, err)

	assert.Equal(t, []string{path}, sup.suppressed)
	assert.Equal(t, []string{path}, sup.unsuppressed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestWatcherUnsuppressGracePeriod(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "grace.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	tr := NewTracker()
	tr.Record(types.PendingChange{Path: path})

	w, err := NewWatcher(tr)
	require.NoError(t, err)
	defer w.Stop()
	w.Track(path)
	w.Start()

	// A write landing between the write syscall and the lifted
	// suppression must still be absorbed.
	w.Suppress(path)
	require.NoError(t, os.WriteFile(path, []byte("own write"), 0644))
	w.Unsuppress(path)
	require.NoError(t, os.WriteFile(path, []byte("own write, queued event"), 0644))

	time.Sleep(400 * time.Millisecond)
	assert.False(t, tr.List()[0].Stale)

	require.NoError(t, os.WriteFile(path, []byte("external"), 0644))
	assert.Eventually(t, func() bool {
		return tr.List()[0].Stale
	}, 2*time.Second, 10*time.Millisecond)
}
