// Package discord implements the Discord channel for Sagebot using discordgo.
//
// It owns the gateway session, forwards ordinary messages to the reply
// pipeline, registers and dispatches the slash commands, and acts as the
// outbound sender for scheduled announcements and reminders.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/sagebot/pkg/sagebot/bot"
	"github.com/jholhewres/sagebot/pkg/sagebot/scheduler"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// messageLimit is Discord's hard cap per message.
const messageLimit = 2000

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// CommandGuild optionally scopes slash-command registration to one
	// guild. Guild-scoped commands appear immediately; global ones can
	// take up to an hour to propagate.
	CommandGuild string `yaml:"command_guild"`
}

// ImageGenerator is the capability the imagine command needs.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Channel wires the Discord gateway to the pipeline, stores, and scheduler.
type Channel struct {
	cfg    Config
	logger *slog.Logger

	pipeline   *bot.Pipeline
	configs    *store.ServerConfigStore
	memory     *store.MemoryStore
	patterns   *store.PatternStore
	counters   *store.CounterStore
	schedules  *store.ScheduleStore
	dispatcher *scheduler.Dispatcher
	images     ImageGenerator

	session   *discordgo.Session
	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps bundles everything the channel needs besides its own config.
type Deps struct {
	Pipeline   *bot.Pipeline
	Configs    *store.ServerConfigStore
	Memory     *store.MemoryStore
	Patterns   *store.PatternStore
	Counters   *store.CounterStore
	Schedules  *store.ScheduleStore
	Dispatcher *scheduler.Dispatcher
	Images     ImageGenerator
}

// New creates a Discord channel instance.
func New(cfg Config, deps Deps, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		cfg:        cfg,
		logger:     logger.With("component", "discord"),
		pipeline:   deps.Pipeline,
		configs:    deps.Configs,
		memory:     deps.Memory,
		patterns:   deps.Patterns,
		counters:   deps.Counters,
		schedules:  deps.Schedules,
		dispatcher: deps.Dispatcher,
		images:     deps.Images,
	}
}

// SetDispatcher injects the scheduler after construction. The dispatcher
// needs the channel as its sender, so it cannot exist before the channel.
func (c *Channel) SetDispatcher(d *scheduler.Dispatcher) {
	c.dispatcher = d
}

// Connect opens the gateway WebSocket and registers the slash commands.
func (c *Channel) Connect(ctx context.Context) error {
	if c.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	c.session = session
	c.connected.Store(true)

	if err := c.registerCommands(); err != nil {
		session.Close()
		c.connected.Store(false)
		return fmt.Errorf("discord: registering commands: %w", err)
	}

	user := session.State.User
	c.logger.Info("connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the gateway connection.
func (c *Channel) Disconnect() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.session != nil {
		c.session.Close()
	}
	c.connected.Store(false)
	c.logger.Info("disconnected")
	return nil
}

// IsConnected reports gateway connection state.
func (c *Channel) IsConnected() bool { return c.connected.Load() }

// onMessageCreate feeds ordinary messages through the reply pipeline.
func (c *Channel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	msg := bot.Message{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		Content:     m.Content,
		IsDirect:    m.GuildID == "",
		MentionsBot: mentionsUser(m.Mentions, s.State.User.ID),
	}

	action := c.pipeline.Handle(c.ctx, msg)
	if action.Kind == bot.ActionIgnored || action.Text == "" {
		return
	}

	if err := c.sendText(m.ChannelID, action.Text); err != nil {
		c.logger.Warn("send reply failed", "channel", m.ChannelID, "error", err)
	}
}

func mentionsUser(mentions []*discordgo.User, userID string) bool {
	for _, u := range mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

// sendText sends a message, chunking at Discord's length limit.
func (c *Channel) sendText(channelID, text string) error {
	for _, chunk := range splitMessage(text, messageLimit) {
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Announce delivers a scheduled message, resolving guild and channel
// through the live session. A vanished guild or channel is skipped
// silently; the schedule row stays for when it comes back.
func (c *Channel) Announce(guildID, channelID, text string) error {
	if c.session == nil {
		return fmt.Errorf("discord: not connected")
	}

	if _, err := c.session.State.Guild(guildID); err != nil {
		if _, err := c.session.Guild(guildID); err != nil {
			c.logger.Debug("announce skipped, guild gone", "guild", guildID)
			return nil
		}
	}
	if _, err := c.session.Channel(channelID); err != nil {
		c.logger.Debug("announce skipped, channel gone", "guild", guildID, "channel", channelID)
		return nil
	}

	return c.sendText(channelID, text)
}

// DirectMessage opens (or reuses) a DM channel with the user and sends.
func (c *Channel) DirectMessage(userID, text string) error {
	if c.session == nil {
		return fmt.Errorf("discord: not connected")
	}
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("discord: opening DM with %s: %w", userID, err)
	}
	return c.sendText(ch.ID, text)
}

// splitMessage splits text into chunks of at most maxLen characters,
// preferring newline boundaries in the second half of a chunk. Discord's
// limit counts characters, not bytes, so chunking works on runes.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cutAt := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cutAt = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cutAt]))
		runes = runes[cutAt:]
	}
	return chunks
}

// Compile-time check: the channel is the scheduler's sender.
var _ scheduler.Sender = (*Channel)(nil)
