// Package store – schedules.go persists cron-scheduled announcements.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Schedule is one recurring announcement: a 5-field cron expression, a
// target channel, and the text to post there.
type Schedule struct {
	ID        int64     `json:"id"`
	GuildID   string    `json:"guild_id"`
	CronExpr  string    `json:"cron_expr"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleStore manages announcement schedules. Cron syntax is validated by
// the caller before Add; the store never keeps a rejected expression.
type ScheduleStore struct {
	db *sql.DB
}

// NewScheduleStore creates a store backed by the shared database.
func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// Add inserts a schedule and returns its id.
func (s *ScheduleStore) Add(guildID, cronExpr, channelID, text string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO schedules (guild_id, cron_expr, channel_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		guildID, cronExpr, channelID, text, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("add schedule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("schedule insert id: %w", err)
	}
	return id, nil
}

// List returns one server's schedules, oldest first.
func (s *ScheduleStore) List(guildID string) ([]Schedule, error) {
	return s.query("SELECT id, guild_id, cron_expr, channel_id, text, created_at FROM schedules WHERE guild_id = ? ORDER BY id", guildID)
}

// All returns every stored schedule across servers, used by the dispatcher
// at process start.
func (s *ScheduleStore) All() ([]Schedule, error) {
	return s.query("SELECT id, guild_id, cron_expr, channel_id, text, created_at FROM schedules ORDER BY id")
}

// Remove deletes a schedule by id. Returns false when no such schedule
// existed; removals are idempotent no-ops, not errors.
func (s *ScheduleStore) Remove(guildID string, id int64) (bool, error) {
	res, err := s.db.Exec(
		"DELETE FROM schedules WHERE guild_id = ? AND id = ?", guildID, id,
	)
	if err != nil {
		return false, fmt.Errorf("remove schedule %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove schedule %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *ScheduleStore) query(q string, args ...any) ([]Schedule, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var (
			sch       Schedule
			createdAt string
		)
		if err := rows.Scan(&sch.ID, &sch.GuildID, &sch.CronExpr, &sch.ChannelID, &sch.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		sch.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}
