// Package store – counters.go persists named usage counters.
package store

import (
	"database/sql"
	"fmt"
)

// Counter names bumped by the reply pipeline and admin commands.
const (
	CounterAIRequests     = "ai_requests"
	CounterTeachResponses = "teach_responses"
	CounterTeachAdded     = "teach_added"
	CounterTeachRemoved   = "teach_removed"
	CounterSchedulesAdded = "schedules_added"
)

// CounterStore manages monotonic integer counters. Bump is a single upsert
// statement, so concurrent callers on the same key never lose an increment:
// SQLite serializes the writes.
type CounterStore struct {
	db *sql.DB
}

// NewCounterStore creates a store backed by the shared database.
func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

// Bump increments a counter by one, creating it at 1 on first use.
func (s *CounterStore) Bump(name string) error {
	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`, name)
	if err != nil {
		return fmt.Errorf("bump counter %q: %w", name, err)
	}
	return nil
}

// Get returns a counter's value, zero when it was never bumped.
func (s *CounterStore) Get(name string) (int64, error) {
	var value int64
	err := s.db.QueryRow("SELECT value FROM counters WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %q: %w", name, err)
	}
	return value, nil
}

// All returns every counter keyed by name.
func (s *CounterStore) All() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT name, value FROM counters ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters[name] = value
	}
	return counters, rows.Err()
}
