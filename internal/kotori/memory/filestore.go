package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayatsuji/kotori/internal/kotori/persona"
)

// FileStore keeps all users' logs in a single JSON document named after the
// persona (memories_<name>.json), so each character remembers independently.
// Every mutation rewrites the document wholesale; the write is synchronous
// but not atomic against partial-write corruption.
type FileStore struct {
	mu    sync.Mutex
	path  string
	users map[string][]Entry
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or initializes) the memory document for personaName
// inside dir. A missing or malformed document starts the store empty; it is
// never fatal.
func NewFileStore(dir, personaName string) (*FileStore, error) {
	name := fmt.Sprintf("memories_%s.json", persona.SanitizeName(personaName))
	s := &FileStore{
		path:  filepath.Join(dir, name),
		users: make(map[string][]Entry),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run for this persona.
	case err != nil:
		return nil, fmt.Errorf("memory: read %s: %w", s.path, err)
	default:
		if err := json.Unmarshal(data, &s.users); err != nil {
			slog.Warn("memory file malformed, starting empty", "path", s.path, "err", err)
			s.users = make(map[string][]Entry)
		}
	}
	return s, nil
}

// Recent implements Store.
func (s *FileStore) Recent(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.users[userID]
	if limit < 0 {
		limit = 0
	}
	if limit < len(log) {
		log = log[len(log)-limit:]
	}
	out := make([]Entry, len(log))
	copy(out, log)
	return out, nil
}

// Append implements Store. The in-memory map is only updated once the
// document has been written, so a failed write leaves the log untouched.
func (s *FileStore) Append(_ context.Context, userID string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.users[userID], Entry{Role: role, Content: content})
	if len(log) > MaxEntries {
		log = log[len(log)-MaxEntries:]
	}

	prev, had := s.users[userID]
	s.users[userID] = log
	if err := s.save(); err != nil {
		if had {
			s.users[userID] = prev
		} else {
			delete(s.users, userID)
		}
		return fmt.Errorf("memory: append for %s: %w", userID, err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.users[userID]
	if !had {
		return nil
	}
	delete(s.users, userID)
	if err := s.save(); err != nil {
		s.users[userID] = prev
		return fmt.Errorf("memory: clear %s: %w", userID, err)
	}
	return nil
}

// save serializes the full store. Must be called with mu held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
