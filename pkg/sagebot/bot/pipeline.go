package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/sagebot/pkg/sagebot/ai"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// FallbackReply is the fixed apology returned when the AI gateway fails.
// A failed AI call never crashes message handling and never leaves the
// user without a visible result.
const FallbackReply = "I could not reach the AI right now. Please try again later."

// RateLimitReply is sent when a user exceeds the AI request window.
const RateLimitReply = "Slow down a little. Try again in a minute."

// memoryWindow is how many recent notes are included in the AI prompt.
const memoryWindow = 8

// ActionKind classifies the pipeline outcome for one message.
type ActionKind int

const (
	// ActionIgnored means no reply is sent.
	ActionIgnored ActionKind = iota
	// ActionPatternReply means a taught pattern matched.
	ActionPatternReply
	// ActionAIReply means the AI gateway produced (or fell back to) the text.
	ActionAIReply
	// ActionRateLimited means the user exceeded the AI request window.
	ActionRateLimited
)

// Action is the pipeline decision plus the reply text, when any.
type Action struct {
	Kind ActionKind
	Text string
}

// Message is one inbound chat message, platform details already stripped.
type Message struct {
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
	IsDirect    bool
	MentionsBot bool
}

// AIClient is the gateway adapter capability the pipeline needs.
// Implementations must not panic; errors are mapped to FallbackReply.
type AIClient interface {
	Complete(ctx context.Context, prompt string, turns []ai.Turn) (string, error)
}

// Pipeline is the single reply decision path for ordinary messages and
// forced asks. It holds no persistent state beyond the injected stores.
type Pipeline struct {
	configs  *store.ServerConfigStore
	memory   *store.MemoryStore
	patterns *store.PatternStore
	counters *store.CounterStore
	client   AIClient
	limiter  *RateLimiter
	logger   *slog.Logger
	now      func() time.Time

	// aiTimeout bounds a single gateway call. The call cannot be aborted
	// midway; on timeout its result is discarded and FallbackReply is used.
	aiTimeout time.Duration
}

// Options tunes the pipeline. Zero values get sensible defaults.
type Options struct {
	AITimeout time.Duration
	Limiter   *RateLimiter
	Now       func() time.Time
}

// NewPipeline wires the pipeline to its stores and the AI gateway.
func NewPipeline(
	configs *store.ServerConfigStore,
	memory *store.MemoryStore,
	patterns *store.PatternStore,
	counters *store.CounterStore,
	client AIClient,
	logger *slog.Logger,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		configs:   configs,
		memory:    memory,
		patterns:  patterns,
		counters:  counters,
		client:    client,
		limiter:   opts.Limiter,
		logger:    logger.With("component", "pipeline"),
		now:       opts.Now,
		aiTimeout: opts.AITimeout,
	}
}

// Handle runs the full decision table for one ordinary message, in order,
// short-circuiting:
//
//  1. bot author -> ignored
//  2. load server config (defaults for DMs and unknown servers)
//  3. allow-list gate, applied exactly once
//  4. reply-mode gate (DMs always pass)
//  5. question gate (before the pattern scan, skipped for DMs)
//  6. pattern scan, newest first
//  7. AI reply with memory append
func (p *Pipeline) Handle(ctx context.Context, msg Message) Action {
	if msg.AuthorIsBot {
		return Action{Kind: ActionIgnored}
	}

	cfg := p.configs.Get(msg.GuildID)

	// The allow-list is consulted here and nowhere else. For reply mode
	// "channel" this same membership decides eligibility, so the mode gate
	// below only checks that a list exists.
	if !msg.IsDirect && !cfg.ChannelAllowed(msg.ChannelID) {
		return Action{Kind: ActionIgnored}
	}

	if !p.shouldReply(cfg, msg) {
		return Action{Kind: ActionIgnored}
	}

	if cfg.OnlyQuestions && !msg.IsDirect && !LooksLikeQuestion(msg.Content) {
		return Action{Kind: ActionIgnored}
	}

	if text, ok := p.matchPattern(msg); ok {
		return Action{Kind: ActionPatternReply, Text: text}
	}

	return p.aiReply(ctx, cfg, msg.AuthorID, msg.Content)
}

// HandleAsk is the forced-AI entry used by the ask command. It bypasses
// the channel, reply-mode, and question gates entirely: an explicit ask
// always consults memory, always calls the gateway, and always appends to
// memory.
func (p *Pipeline) HandleAsk(ctx context.Context, guildID, userID, prompt string) Action {
	cfg := p.configs.Get(guildID)
	return p.aiReply(ctx, cfg, userID, prompt)
}

// shouldReply applies the reply-mode gate. Direct messages always pass.
func (p *Pipeline) shouldReply(cfg store.ServerConfig, msg Message) bool {
	if msg.IsDirect {
		return true
	}
	switch cfg.ReplyMode {
	case store.ReplyAlways:
		return true
	case store.ReplyMention:
		return msg.MentionsBot
	case store.ReplyChannel:
		// Membership was already established by the allow-list gate; with
		// no list configured there is nothing to be a member of.
		return len(cfg.AllowedChannels) > 0
	}
	return false
}

// matchPattern scans the server's taught patterns newest first and returns
// the first whose trigger is a case-insensitive substring of the message.
func (p *Pipeline) matchPattern(msg Message) (string, bool) {
	patterns, err := p.patterns.List(msg.GuildID)
	if err != nil {
		p.logger.Error("pattern scan failed", "guild", msg.GuildID, "error", err)
		return "", false
	}

	lower := strings.ToLower(msg.Content)
	for _, pat := range patterns {
		if pat.Trigger == "" {
			continue
		}
		if strings.Contains(lower, pat.Trigger) {
			if err := p.counters.Bump(store.CounterTeachResponses); err != nil {
				p.logger.Warn("counter bump failed", "error", err)
			}
			out := strings.ReplaceAll(pat.Response, "{user}", "<@"+msg.AuthorID+">")
			return out, true
		}
	}
	return "", false
}

// aiReply builds the prompt from personality plus the last notes, calls the
// gateway, and appends a memory note with the original user text. Memory is
// read before the call and written after; no lock is held while the call is
// in flight, so concurrent messages from the same user are last-write-wins.
func (p *Pipeline) aiReply(ctx context.Context, cfg store.ServerConfig, userID, content string) Action {
	if p.limiter != nil && !p.limiter.Allow(userID) {
		return Action{Kind: ActionRateLimited, Text: RateLimitReply}
	}

	recent := p.memory.Recent(userID, memoryWindow)

	var b strings.Builder
	b.WriteString(SystemPrompt(cfg.Personality))
	b.WriteString("\n\nRecent memory:\n")
	b.WriteString(strings.Join(recent, "\n"))
	b.WriteString("\n\nUser message:\n")
	b.WriteString(content)

	if err := p.counters.Bump(store.CounterAIRequests); err != nil {
		p.logger.Warn("counter bump failed", "error", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.aiTimeout)
	defer cancel()

	reply, err := p.client.Complete(callCtx, b.String(), nil)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			p.logger.Warn("AI gateway call failed", "user", userID, "error", err)
		}
		reply = FallbackReply
	}

	// The note records the original user text, not the reply, and is
	// appended even when the gateway failed.
	note := p.now().UTC().Format(time.RFC3339) + ": " + content
	if err := p.memory.Append(userID, note); err != nil {
		p.logger.Error("memory append failed", "user", userID, "error", err)
	}

	return Action{Kind: ActionAIReply, Text: reply}
}
