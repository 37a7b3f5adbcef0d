// Package store – serverconfig.go persists per-server reply settings.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Reply modes governing when the bot answers ordinary messages.
const (
	ReplyAlways  = "always"
	ReplyMention = "mention"
	ReplyChannel = "channel"
)

// ServerConfig holds the per-server settings. Unknown JSON fields are
// ignored on read; a missing row yields DefaultServerConfig.
type ServerConfig struct {
	ReplyMode       string   `json:"reply_mode"`
	AllowedChannels []string `json:"allowed_channels"`
	OnlyQuestions   bool     `json:"only_questions"`
	Personality     string   `json:"personality"`
}

// DefaultServerConfig returns the settings applied to servers that never
// stored a config, and to direct messages.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReplyMode:       ReplyMention,
		AllowedChannels: nil,
		OnlyQuestions:   true,
		Personality:     "standard",
	}
}

// ChannelAllowed reports whether a channel passes the allow-list.
// An empty list allows every channel.
func (c ServerConfig) ChannelAllowed(channelID string) bool {
	if len(c.AllowedChannels) == 0 {
		return true
	}
	for _, id := range c.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// ServerConfigStore reads and writes ServerConfig rows.
type ServerConfigStore struct {
	db *sql.DB
}

// NewServerConfigStore creates a store backed by the shared database.
func NewServerConfigStore(db *sql.DB) *ServerConfigStore {
	return &ServerConfigStore{db: db}
}

// Get returns the stored config for a guild, or the defaults when no row
// exists or the stored JSON is unreadable. Read-or-default on every access.
func (s *ServerConfigStore) Get(guildID string) ServerConfig {
	cfg := DefaultServerConfig()
	if guildID == "" {
		return cfg
	}

	var raw string
	err := s.db.QueryRow(
		"SELECT config_json FROM server_configs WHERE guild_id = ?", guildID,
	).Scan(&raw)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return DefaultServerConfig()
	}
	if !validReplyMode(cfg.ReplyMode) {
		cfg.ReplyMode = ReplyMention
	}
	return cfg
}

// Set persists the config for a guild (insert or update).
func (s *ServerConfigStore) Set(guildID string, cfg ServerConfig) error {
	if !validReplyMode(cfg.ReplyMode) {
		return fmt.Errorf("invalid reply mode %q", cfg.ReplyMode)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal server config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO server_configs (guild_id, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at  = excluded.updated_at`,
		guildID, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save server config %q: %w", guildID, err)
	}
	return nil
}

func validReplyMode(mode string) bool {
	switch mode {
	case ReplyAlways, ReplyMention, ReplyChannel:
		return true
	}
	return false
}
