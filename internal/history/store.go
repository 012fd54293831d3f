// Package history persists conversation records and the input history
// as crash-safe JSON files.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// ErrNotFound is returned when a conversation id has no record.
var ErrNotFound = errors.New("conversation not found")

// Store is a directory of one JSON file per conversation.
type Store struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*fileLock
}

// NewStore creates a store rooted at dir. The directory is created on
// first write.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: make(map[string]*fileLock),
	}
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// SaveConversation writes the full record atomically (temp then rename)
// under a per-file flock.
func (s *Store) SaveConversation(record *types.ConversationRecord) error {
	if record.ID == "" {
		return fmt.Errorf("conversation record has no id")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	path := s.recordPath(record.ID)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// LoadConversation reads one record by id.
func (s *Store) LoadConversation(id string) (*types.ConversationRecord, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var record types.ConversationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// LoadConversations returns all records sorted by timestamp descending.
// Files that fail to read or parse are skipped.
func (s *Store) LoadConversations() []*types.ConversationRecord {
	log := logging.Component("history")

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var records []*types.ConversationRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var record types.ConversationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping unparseable conversation record")
			continue
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	return records
}

// UpdateConversationTitle sets the title of an existing record. A
// missing record is not an error.
func (s *Store) UpdateConversationTitle(id, title string) error {
	record, err := s.LoadConversation(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	record.Title = title
	return s.SaveConversation(record)
}

// DeleteConversation removes a record. Deleting a missing record is a
// no-op.
func (s *Store) DeleteConversation(id string) error {
	path := s.recordPath(id)
	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *Store) getLock(path string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = newFileLock(path)
		s.locks[path] = lock
	}
	return lock
}
