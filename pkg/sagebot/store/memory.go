// Package store – memory.go persists per-user conversation notes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MaxNotes caps the per-user note list. The oldest note is evicted FIFO
// once the cap is exceeded.
const MaxNotes = 200

// UserMemory is the rolling note list for one user, newest last.
type UserMemory struct {
	Notes    []string `json:"notes"`
	LastUsed string   `json:"last_used,omitempty"`
}

// MemoryStore reads and writes UserMemory rows. Append-and-trim is a
// read-then-write sequence, so it is serialized per user id to avoid lost
// updates from concurrent messages. Different users never contend.
type MemoryStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryStore creates a store backed by the shared database.
func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex guarding one user's read-modify-write cycle.
func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Get returns the stored memory for a user, or an empty memory when no row
// exists or the stored JSON is unreadable.
func (s *MemoryStore) Get(userID string) UserMemory {
	var raw string
	err := s.db.QueryRow(
		"SELECT memory_json FROM user_memory WHERE user_id = ?", userID,
	).Scan(&raw)
	if err != nil {
		return UserMemory{}
	}

	var mem UserMemory
	if err := json.Unmarshal([]byte(raw), &mem); err != nil {
		return UserMemory{}
	}
	return mem
}

// Set replaces a user's memory (insert or update).
func (s *MemoryStore) Set(userID string, mem UserMemory) error {
	raw, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("marshal user memory: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO user_memory (user_id, memory_json)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET memory_json = excluded.memory_json`,
		userID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save user memory %q: %w", userID, err)
	}
	return nil
}

// Append adds one note to a user's memory, evicting the oldest note when
// the list exceeds MaxNotes. The whole cycle holds the per-user lock.
func (s *MemoryStore) Append(userID, note string) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	mem := s.Get(userID)
	mem.Notes = append(mem.Notes, note)
	if len(mem.Notes) > MaxNotes {
		mem.Notes = mem.Notes[len(mem.Notes)-MaxNotes:]
	}
	mem.LastUsed = time.Now().UTC().Format(time.RFC3339)
	return s.Set(userID, mem)
}

// Recent returns up to n notes, oldest first.
func (s *MemoryStore) Recent(userID string, n int) []string {
	mem := s.Get(userID)
	if len(mem.Notes) <= n {
		return mem.Notes
	}
	return mem.Notes[len(mem.Notes)-n:]
}

// Clear removes a user's memory entirely.
func (s *MemoryStore) Clear(userID string) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	_, err := s.db.Exec("DELETE FROM user_memory WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clear user memory %q: %w", userID, err)
	}
	return nil
}
