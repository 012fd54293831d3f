package types

// PendingChange is a snapshot sufficient to undo one file mutation. It is
// recorded by the tool runner when a mutating tool succeeds and consumed
// by review mode.
type PendingChange struct {
	Path    string `json:"path"`
	Existed bool   `json:"existed"` // false: the file did not exist before
	Before  []byte `json:"before,omitempty"`
	After   []byte `json:"after,omitempty"`
	Tool    string `json:"tool"`
	Time    int64  `json:"time"`

	// Stale is set when the path was modified outside the tool runner
	// after the snapshot was taken; reverting a stale change would
	// clobber the external edit.
	Stale bool `json:"stale,omitempty"`
}
