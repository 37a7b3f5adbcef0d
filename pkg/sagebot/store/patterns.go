// Package store – patterns.go persists admin-taught trigger/response pairs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyTrigger is returned when a pattern is created with a blank
// trigger. An empty trigger would match every message (substring of
// everything), so creation rejects it.
var ErrEmptyTrigger = errors.New("pattern trigger must not be empty")

// Pattern is one taught trigger/response pair. The trigger is stored
// lower-cased; the response keeps the raw {user} placeholder, substituted
// at match time.
type Pattern struct {
	ID        int64     `json:"id"`
	GuildID   string    `json:"guild_id"`
	Trigger   string    `json:"trigger"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// PatternStore manages taught patterns per server.
type PatternStore struct {
	db *sql.DB
}

// NewPatternStore creates a store backed by the shared database.
func NewPatternStore(db *sql.DB) *PatternStore {
	return &PatternStore{db: db}
}

// Add inserts a pattern and returns its id. The trigger is lower-cased at
// insertion; empty or whitespace-only triggers are rejected.
func (s *PatternStore) Add(guildID, trigger, response string) (int64, error) {
	t := strings.ToLower(strings.TrimSpace(trigger))
	if t == "" {
		return 0, ErrEmptyTrigger
	}

	res, err := s.db.Exec(`
		INSERT INTO teach_patterns (guild_id, trigger, response, created_at)
		VALUES (?, ?, ?, ?)`,
		guildID, t, response, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("add pattern: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("pattern insert id: %w", err)
	}
	return id, nil
}

// List returns a server's patterns newest first. The descending order is
// load-bearing: the reply pipeline scans in this order so the most recently
// taught pattern wins on overlapping triggers.
func (s *PatternStore) List(guildID string) ([]Pattern, error) {
	rows, err := s.db.Query(`
		SELECT id, guild_id, trigger, response, created_at
		FROM teach_patterns
		WHERE guild_id = ?
		ORDER BY id DESC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var (
			p         Pattern
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.GuildID, &p.Trigger, &p.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// Remove deletes a pattern by id within a server. Returns false when no
// such pattern existed; that is not an error, so admin removals stay
// idempotent.
func (s *PatternStore) Remove(guildID string, id int64) (bool, error) {
	res, err := s.db.Exec(
		"DELETE FROM teach_patterns WHERE guild_id = ? AND id = ?", guildID, id,
	)
	if err != nil {
		return false, fmt.Errorf("remove pattern %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove pattern %d: %w", id, err)
	}
	return n > 0, nil
}
