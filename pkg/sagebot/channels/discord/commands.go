package discord

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/sagebot/pkg/sagebot/bot"
	"github.com/jholhewres/sagebot/pkg/sagebot/scheduler"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// memoryShowWindow is how many notes the memory show command returns.
const memoryShowWindow = 10

// maxReminder caps one-shot reminder delays.
const maxReminder = 7 * 24 * time.Hour

// adminPermissions hides admin commands from members without Manage
// Server. The runtime requireAdmin check still backs this up.
var adminPermissions = int64(discordgo.PermissionManageServer)

// commandDefs is the explicit slash-command registry. Commands are
// declared here and dispatched by name; nothing is discovered at runtime.
func commandDefs() []*discordgo.ApplicationCommand {
	modeChoices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: "always", Value: store.ReplyAlways},
		{Name: "mention", Value: store.ReplyMention},
		{Name: "channel", Value: store.ReplyChannel},
	}
	var personalityChoices []*discordgo.ApplicationCommandOptionChoice
	for _, name := range bot.PersonalityModes() {
		personalityChoices = append(personalityChoices, &discordgo.ApplicationCommandOptionChoice{
			Name: name, Value: name,
		})
	}

	return []*discordgo.ApplicationCommand{
		{Name: "ping", Description: "Check that the bot is alive"},
		{
			Name:        "ask",
			Description: "Ask the AI directly, regardless of reply settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "What to ask", Required: true},
			},
		},
		{
			Name:                     "mode",
			Description:              "Set the bot's personality for this server (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Personality", Required: true, Choices: personalityChoices},
			},
		},
		{
			Name:                     "replymode",
			Description:              "Set when the bot replies to ordinary messages (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Reply mode", Required: true, Choices: modeChoices},
			},
		},
		{
			Name:                     "teach",
			Description:              "Teach a trigger/response pattern (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "trigger", Description: "Text that triggers the response", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "response", Description: "Reply text, {user} mentions the author", Required: true},
			},
		},
		{
			Name:                     "teach-list",
			Description:              "List taught patterns for this server (admin)",
			DefaultMemberPermissions: &adminPermissions,
		},
		{
			Name:                     "teach-remove",
			Description:              "Remove a taught pattern by id (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Description: "Pattern id from teach-list", Required: true},
			},
		},
		{
			Name:                     "schedule-add",
			Description:              "Schedule a recurring announcement (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "cron", Description: "5-field cron expression, UTC", Required: true},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel to announce in", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "Announcement text", Required: true},
			},
		},
		{
			Name:                     "schedule-list",
			Description:              "List scheduled announcements for this server (admin)",
			DefaultMemberPermissions: &adminPermissions,
		},
		{
			Name:                     "schedule-remove",
			Description:              "Remove a scheduled announcement by id (admin)",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Description: "Schedule id from schedule-list", Required: true},
			},
		},
		{
			Name:        "memory",
			Description: "Manage what the bot remembers about you",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add", Description: "Add a note",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "note", Description: "Note to remember", Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show recent notes"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "clear", Description: "Forget everything about you"},
			},
		},
		{Name: "help", Description: "Show what the bot can do"},
		{Name: "coinflip", Description: "Flip a coin"},
		{
			Name:        "remind",
			Description: "Get a DM reminder after a delay",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "in", Description: "Delay, e.g. 10m or 2h30m", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "note", Description: "What to remind you of", Required: true},
			},
		},
		{
			Name:        "imagine",
			Description: "Generate an image from a prompt",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "Image description", Required: true},
			},
		},
	}
}

func (c *Channel) registerCommands() error {
	appID := c.session.State.User.ID
	for _, cmd := range commandDefs() {
		if _, err := c.session.ApplicationCommandCreate(appID, c.cfg.CommandGuild, cmd); err != nil {
			return fmt.Errorf("command %q: %w", cmd.Name, err)
		}
	}
	c.logger.Info("slash commands registered", "count", len(commandDefs()), "guild", c.cfg.CommandGuild)
	return nil
}

// onInteractionCreate dispatches slash commands by name.
func (c *Channel) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "ping":
		c.respond(s, i, fmt.Sprintf("Pong! Gateway latency %s.", s.HeartbeatLatency().Round(time.Millisecond)), false)
	case "ask":
		c.handleAsk(s, i, data)
	case "mode":
		c.handleMode(s, i, data)
	case "replymode":
		c.handleReplyMode(s, i, data)
	case "teach":
		c.handleTeach(s, i, data)
	case "teach-list":
		c.handleTeachList(s, i)
	case "teach-remove":
		c.handleTeachRemove(s, i, data)
	case "schedule-add":
		c.handleScheduleAdd(s, i, data)
	case "schedule-list":
		c.handleScheduleList(s, i)
	case "schedule-remove":
		c.handleScheduleRemove(s, i, data)
	case "memory":
		c.handleMemory(s, i, data)
	case "help":
		c.respond(s, i, helpText, true)
	case "coinflip":
		c.handleCoinflip(s, i)
	case "remind":
		c.handleRemind(s, i, data)
	case "imagine":
		c.handleImagine(s, i, data)
	default:
		c.respond(s, i, "Unknown command.", true)
	}
}

const helpText = `**Sagebot commands**
/ping - check the bot is alive
/ask <prompt> - ask the AI directly
/mode <name> - set the bot's personality (admin)
/replymode <name> - set reply mode: always, mention, channel (admin)
/teach <trigger> <response> - teach a pattern (admin)
/teach-list, /teach-remove <id> - manage patterns
/schedule-add <cron> <channel> <text> - recurring announcement (admin)
/schedule-list, /schedule-remove <id> - manage schedules
/memory add|show|clear - manage your notes
/remind <in> <note> - one-shot DM reminder
/imagine <prompt> - generate an image
/coinflip - flip a coin`

// ---------- Command handlers ----------

func (c *Channel) handleAsk(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	prompt := stringOption(data.Options, "prompt")
	if strings.TrimSpace(prompt) == "" {
		c.respond(s, i, "Give me something to ask.", true)
		return
	}

	// The AI call can exceed Discord's 3 second interaction deadline, so
	// acknowledge first and edit the response when the answer arrives.
	c.deferred(s, i, false, func(ctx context.Context) string {
		action := c.pipeline.HandleAsk(ctx, i.GuildID, interactionUserID(i), prompt)
		return action.Text
	})
}

// handleMode sets the server's personality. The reply-mode setter lives
// under /replymode.
func (c *Channel) handleMode(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	reply, ok := c.setPersonality(i.GuildID, stringOption(data.Options, "name"))
	c.respond(s, i, reply, !ok)
}

func (c *Channel) handleReplyMode(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	reply, ok := c.setReplyMode(i.GuildID, stringOption(data.Options, "name"))
	c.respond(s, i, reply, !ok)
}

// setPersonality persists the personality and leaves every other server
// setting untouched.
func (c *Channel) setPersonality(guildID, name string) (string, bool) {
	if !bot.KnownPersonality(name) {
		return "Unknown personality. Pick one of: " + strings.Join(bot.PersonalityModes(), ", ") + ".", false
	}
	cfg := c.configs.Get(guildID)
	cfg.Personality = name
	if err := c.configs.Set(guildID, cfg); err != nil {
		c.logger.Error("set personality", "guild", guildID, "error", err)
		return "Could not save the personality.", false
	}
	return "Personality set to **" + name + "**.", true
}

func (c *Channel) setReplyMode(guildID, mode string) (string, bool) {
	cfg := c.configs.Get(guildID)
	cfg.ReplyMode = mode
	if err := c.configs.Set(guildID, cfg); err != nil {
		c.logger.Error("set reply mode", "guild", guildID, "error", err)
		return "Could not save the reply mode.", false
	}
	return "Reply mode set to **" + mode + "**.", true
}

func (c *Channel) handleTeach(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	trigger := stringOption(data.Options, "trigger")
	response := stringOption(data.Options, "response")

	id, err := c.patterns.Add(i.GuildID, trigger, response)
	if err != nil {
		if errors.Is(err, store.ErrEmptyTrigger) {
			c.respond(s, i, "The trigger must not be empty.", true)
			return
		}
		c.logger.Error("teach pattern", "guild", i.GuildID, "error", err)
		c.respond(s, i, "Could not save the pattern.", true)
		return
	}
	if err := c.counters.Bump(store.CounterTeachAdded); err != nil {
		c.logger.Warn("counter bump failed", "error", err)
	}
	c.respond(s, i, fmt.Sprintf("Learned pattern #%d.", id), false)
}

func (c *Channel) handleTeachList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	patterns, err := c.patterns.List(i.GuildID)
	if err != nil {
		c.logger.Error("list patterns", "guild", i.GuildID, "error", err)
		c.respond(s, i, "Could not list patterns.", true)
		return
	}
	if len(patterns) == 0 {
		c.respond(s, i, "No patterns taught yet. Use /teach to add one.", true)
		return
	}

	var b strings.Builder
	b.WriteString("Taught patterns (newest first):\n")
	for _, p := range patterns {
		fmt.Fprintf(&b, "#%d: \"%s\" -> %s\n", p.ID, p.Trigger, p.Response)
	}
	c.respond(s, i, b.String(), true)
}

func (c *Channel) handleTeachRemove(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	id := intOption(data.Options, "id")

	removed, err := c.patterns.Remove(i.GuildID, id)
	if err != nil {
		c.logger.Error("remove pattern", "guild", i.GuildID, "id", id, "error", err)
		c.respond(s, i, "Could not remove the pattern.", true)
		return
	}
	if !removed {
		// Removing an absent pattern is a no-op, not an error.
		c.respond(s, i, fmt.Sprintf("No pattern #%d to remove.", id), true)
		return
	}
	if err := c.counters.Bump(store.CounterTeachRemoved); err != nil {
		c.logger.Warn("counter bump failed", "error", err)
	}
	c.respond(s, i, fmt.Sprintf("Removed pattern #%d.", id), false)
}

func (c *Channel) handleScheduleAdd(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	cronExpr := stringOption(data.Options, "cron")
	channelID := channelOption(data.Options, "channel")
	text := stringOption(data.Options, "text")

	// Validate before writing anything so a bad expression leaves no row.
	if err := scheduler.ValidateCron(cronExpr); err != nil {
		c.respond(s, i, "That is not a valid cron expression: "+err.Error(), true)
		return
	}
	if strings.TrimSpace(text) == "" {
		c.respond(s, i, "The announcement text must not be empty.", true)
		return
	}

	id, err := c.schedules.Add(i.GuildID, cronExpr, channelID, text)
	if err != nil {
		c.logger.Error("add schedule", "guild", i.GuildID, "error", err)
		c.respond(s, i, "Could not save the schedule.", true)
		return
	}

	if err := c.dispatcher.Register(store.Schedule{
		ID:        id,
		GuildID:   i.GuildID,
		CronExpr:  cronExpr,
		ChannelID: channelID,
		Text:      text,
	}); err != nil {
		c.logger.Error("register schedule", "id", id, "error", err)
	}
	if err := c.counters.Bump(store.CounterSchedulesAdded); err != nil {
		c.logger.Warn("counter bump failed", "error", err)
	}
	c.respond(s, i, fmt.Sprintf("Schedule #%d added: `%s` in <#%s>.", id, cronExpr, channelID), false)
}

func (c *Channel) handleScheduleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !c.requireAdmin(s, i) {
		return
	}
	schedules, err := c.schedules.List(i.GuildID)
	if err != nil {
		c.logger.Error("list schedules", "guild", i.GuildID, "error", err)
		c.respond(s, i, "Could not list schedules.", true)
		return
	}
	if len(schedules) == 0 {
		c.respond(s, i, "No schedules yet. Use /schedule-add to create one.", true)
		return
	}

	var b strings.Builder
	b.WriteString("Schedules (times in UTC):\n")
	for _, sch := range schedules {
		fmt.Fprintf(&b, "#%d: `%s` in <#%s>: %s\n", sch.ID, sch.CronExpr, sch.ChannelID, sch.Text)
	}
	c.respond(s, i, b.String(), true)
}

func (c *Channel) handleScheduleRemove(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !c.requireAdmin(s, i) {
		return
	}
	id := intOption(data.Options, "id")

	removed, err := c.schedules.Remove(i.GuildID, id)
	if err != nil {
		c.logger.Error("remove schedule", "guild", i.GuildID, "id", id, "error", err)
		c.respond(s, i, "Could not remove the schedule.", true)
		return
	}
	if !removed {
		c.respond(s, i, fmt.Sprintf("No schedule #%d to remove.", id), true)
		return
	}
	c.dispatcher.Unregister(id)
	c.respond(s, i, fmt.Sprintf("Removed schedule #%d.", id), false)
}

func (c *Channel) handleMemory(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		c.respond(s, i, "Use memory add, show, or clear.", true)
		return
	}
	sub := data.Options[0]
	userID := interactionUserID(i)

	switch sub.Name {
	case "add":
		note := stringOption(sub.Options, "note")
		if strings.TrimSpace(note) == "" {
			c.respond(s, i, "The note must not be empty.", true)
			return
		}
		if err := c.memory.Append(userID, note); err != nil {
			c.logger.Error("memory append", "user", userID, "error", err)
			c.respond(s, i, "Could not save the note.", true)
			return
		}
		c.respond(s, i, "Noted.", true)
	case "show":
		notes := c.memory.Recent(userID, memoryShowWindow)
		if len(notes) == 0 {
			c.respond(s, i, "I have nothing remembered about you.", true)
			return
		}
		c.respond(s, i, "Recent notes:\n"+strings.Join(notes, "\n"), true)
	case "clear":
		if err := c.memory.Clear(userID); err != nil {
			c.logger.Error("memory clear", "user", userID, "error", err)
			c.respond(s, i, "Could not clear your notes.", true)
			return
		}
		c.respond(s, i, "Forgotten.", true)
	default:
		c.respond(s, i, "Use memory add, show, or clear.", true)
	}
}

func (c *Channel) handleCoinflip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	result := "Heads"
	if rand.IntN(2) == 1 {
		result = "Tails"
	}
	c.respond(s, i, "🪙 "+result+"!", false)
}

func (c *Channel) handleRemind(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	raw := stringOption(data.Options, "in")
	note := stringOption(data.Options, "note")

	delay, err := time.ParseDuration(raw)
	if err != nil || delay <= 0 {
		c.respond(s, i, "I could not read that delay. Try something like 10m or 2h30m.", true)
		return
	}
	if delay > maxReminder {
		c.respond(s, i, "That is too far out. Reminders go up to 7 days.", true)
		return
	}

	c.dispatcher.RemindAfter(delay, interactionUserID(i), note)
	c.respond(s, i, fmt.Sprintf("I will DM you in %s.", delay), true)
}

func (c *Channel) handleImagine(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	prompt := stringOption(data.Options, "prompt")
	if strings.TrimSpace(prompt) == "" {
		c.respond(s, i, "Describe the image you want.", true)
		return
	}
	if c.images == nil {
		c.respond(s, i, "Image generation is not configured.", true)
		return
	}

	c.deferred(s, i, false, func(ctx context.Context) string {
		url, err := c.images.GenerateImage(ctx, prompt)
		if err != nil {
			c.logger.Warn("image generation failed", "error", err)
			return "I could not generate that image right now."
		}
		return url
	})
}

// ---------- Helpers ----------

// requireAdmin checks the Manage Server permission. An unauthorized use
// gets an ephemeral refusal and changes no state.
func (c *Channel) requireAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member != nil && i.Member.Permissions&discordgo.PermissionManageServer != 0 {
		return true
	}
	c.respond(s, i, "You need the Manage Server permission for that.", true)
	return false
}

func (c *Channel) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		c.logger.Warn("interaction respond failed", "error", err)
	}
}

// deferred acknowledges the interaction within Discord's 3 second window,
// runs fn in the background, and edits the response with its result.
func (c *Channel) deferred(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool, fn func(ctx context.Context) string) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		c.logger.Warn("interaction defer failed", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, 60*time.Second)
		defer cancel()

		content := fn(ctx)
		if content == "" {
			content = "Done."
		}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &content,
		}); err != nil {
			c.logger.Warn("interaction edit failed", "error", err)
		}
	}()
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, o := range opts {
		if o.Name == name {
			return o.IntValue()
		}
	}
	return 0
}

func channelOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			// ChannelValue(nil) returns a channel with only the ID set,
			// which is all we store.
			if ch := o.ChannelValue(nil); ch != nil {
				return ch.ID
			}
		}
	}
	return ""
}
