package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// MaxInputHistory caps the input ring.
const MaxInputHistory = 100

// InputHistory is the persisted ring of submitted user inputs.
type InputHistory struct {
	mu      sync.Mutex
	path    string
	entries []string
}

// NewInputHistory loads the ring from path; a missing or unreadable
// file starts empty.
func NewInputHistory(path string) *InputHistory {
	h := &InputHistory{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return h
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return h
	}
	if len(entries) > MaxInputHistory {
		entries = entries[len(entries)-MaxInputHistory:]
	}
	h.entries = entries
	return h
}

// Append records an input and persists. A duplicate of the most recent
// entry is suppressed; older duplicates are kept.
func (h *InputHistory) Append(input string) error {
	if input == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == input {
		return nil
	}
	h.entries = append(h.entries, input)
	if len(h.entries) > MaxInputHistory {
		h.entries = h.entries[len(h.entries)-MaxInputHistory:]
	}
	return h.persist()
}

// Entries returns a copy, oldest first.
func (h *InputHistory) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored inputs.
func (h *InputHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *InputHistory) persist() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
