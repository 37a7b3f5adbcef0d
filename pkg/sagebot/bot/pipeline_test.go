package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/sagebot/pkg/sagebot/ai"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// fakeAI records the prompts it receives and returns a canned reply or error.
type fakeAI struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeAI) Complete(_ context.Context, prompt string, _ []ai.Turn) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fixture struct {
	pipeline *Pipeline
	configs  *store.ServerConfigStore
	memory   *store.MemoryStore
	patterns *store.PatternStore
	counters *store.CounterStore
	client   *fakeAI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		configs:  store.NewServerConfigStore(db),
		memory:   store.NewMemoryStore(db),
		patterns: store.NewPatternStore(db),
		counters: store.NewCounterStore(db),
		client:   &fakeAI{reply: "ai says hi"},
	}
	fixedNow := func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	f.pipeline = NewPipeline(f.configs, f.memory, f.patterns, f.counters, f.client, nil, Options{Now: fixedNow})
	return f
}

func guildMsg(content string, mentions bool) Message {
	return Message{
		GuildID:     "g1",
		ChannelID:   "c1",
		AuthorID:    "u1",
		Content:     content,
		MentionsBot: mentions,
	}
}

func TestIgnoresBotAuthors(t *testing.T) {
	f := newFixture(t)
	msg := guildMsg("hello?", true)
	msg.AuthorIsBot = true
	if got := f.pipeline.Handle(context.Background(), msg); got.Kind != ActionIgnored {
		t.Errorf("bot message not ignored: %+v", got)
	}
}

func TestMentionModeRequiresMention(t *testing.T) {
	f := newFixture(t)

	// Default config is mention mode.
	if got := f.pipeline.Handle(context.Background(), guildMsg("what is this?", false)); got.Kind != ActionIgnored {
		t.Errorf("unmentioned message not ignored: %+v", got)
	}
	if got := f.pipeline.Handle(context.Background(), guildMsg("what is this?", true)); got.Kind != ActionAIReply {
		t.Errorf("mentioned question: %+v", got)
	}
}

func TestDirectMessagesBypassModeAndQuestionGates(t *testing.T) {
	f := newFixture(t)

	msg := Message{AuthorID: "u1", Content: "just a statement", IsDirect: true}
	if got := f.pipeline.Handle(context.Background(), msg); got.Kind != ActionAIReply {
		t.Errorf("DM should always reach the AI path: %+v", got)
	}
}

func TestChannelAllowListAppliedOnce(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{
		ReplyMode:       store.ReplyChannel,
		AllowedChannels: []string{"c1"},
		Personality:     "standard",
	})

	// Listed channel replies without a mention.
	if got := f.pipeline.Handle(context.Background(), guildMsg("hello there", false)); got.Kind != ActionAIReply {
		t.Errorf("listed channel should reply: %+v", got)
	}

	// Unlisted channel is ignored.
	msg := guildMsg("hello there", true)
	msg.ChannelID = "c2"
	if got := f.pipeline.Handle(context.Background(), msg); got.Kind != ActionIgnored {
		t.Errorf("unlisted channel should be ignored: %+v", got)
	}
}

func TestChannelModeWithEmptyListIgnores(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{
		ReplyMode:   store.ReplyChannel,
		Personality: "standard",
	})

	if got := f.pipeline.Handle(context.Background(), guildMsg("hi", true)); got.Kind != ActionIgnored {
		t.Errorf("channel mode with no channels should ignore: %+v", got)
	}
}

func TestQuestionGate(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{
		ReplyMode:     store.ReplyAlways,
		OnlyQuestions: true,
		Personality:   "standard",
	})

	if got := f.pipeline.Handle(context.Background(), guildMsg("this is a statement", false)); got.Kind != ActionIgnored {
		t.Errorf("non-question should be ignored: %+v", got)
	}
	if got := f.pipeline.Handle(context.Background(), guildMsg("can you help", false)); got.Kind != ActionAIReply {
		t.Errorf("question should pass: %+v", got)
	}
}

func TestQuestionGatePrecedesPatternScan(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{
		ReplyMode:     store.ReplyAlways,
		OnlyQuestions: true,
		Personality:   "standard",
	})
	f.patterns.Add("g1", "statement", "matched")

	// The pattern would match, but the question gate runs first.
	if got := f.pipeline.Handle(context.Background(), guildMsg("this is a statement", false)); got.Kind != ActionIgnored {
		t.Errorf("question gate should precede pattern scan: %+v", got)
	}
}

func TestPatternNewestFirstAndSubstitution(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{ReplyMode: store.ReplyAlways, Personality: "standard"})

	f.patterns.Add("g1", "hi", "old {user}")
	f.patterns.Add("g1", "hi there", "new {user}")

	got := f.pipeline.Handle(context.Background(), guildMsg("HI THERE friend", false))
	if got.Kind != ActionPatternReply {
		t.Fatalf("expected pattern reply, got %+v", got)
	}
	// Most recently created pattern wins, {user} is replaced with mention markup.
	if got.Text != "new <@u1>" {
		t.Errorf("reply = %q, want newest pattern with mention", got.Text)
	}

	v, _ := f.counters.Get(store.CounterTeachResponses)
	if v != 1 {
		t.Errorf("teach_responses = %d, want 1", v)
	}
}

func TestPatternIsSubstringNotWholeWord(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{ReplyMode: store.ReplyAlways, Personality: "standard"})
	f.patterns.Add("g1", "hi", "caught")

	// "hi" is a substring of "this".
	if got := f.pipeline.Handle(context.Background(), guildMsg("this", false)); got.Kind != ActionPatternReply {
		t.Errorf("substring match expected: %+v", got)
	}
}

func TestAIReplyBumpsCounterAndAppendsMemory(t *testing.T) {
	f := newFixture(t)

	got := f.pipeline.Handle(context.Background(), guildMsg("What time is it?", true))
	if got.Kind != ActionAIReply || got.Text != "ai says hi" {
		t.Fatalf("expected AI reply, got %+v", got)
	}

	if v, _ := f.counters.Get(store.CounterAIRequests); v != 1 {
		t.Errorf("ai_requests = %d, want 1", v)
	}

	notes := f.memory.Get("u1").Notes
	if len(notes) != 1 {
		t.Fatalf("memory notes = %d, want 1", len(notes))
	}
	if notes[0] != "2025-06-01T12:00:00Z: What time is it?" {
		t.Errorf("note = %q", notes[0])
	}
}

func TestAIFailureReturnsFallbackAndStillAppendsMemory(t *testing.T) {
	f := newFixture(t)
	f.client.err = errors.New("gateway down")

	got := f.pipeline.Handle(context.Background(), guildMsg("Why is it broken?", true))
	if got.Kind != ActionAIReply || got.Text != FallbackReply {
		t.Fatalf("expected fallback reply, got %+v", got)
	}

	// The memory note records the original user text, not the fallback.
	notes := f.memory.Get("u1").Notes
	if len(notes) != 1 || !strings.HasSuffix(notes[0], ": Why is it broken?") {
		t.Errorf("notes = %v", notes)
	}
}

func TestPromptIncludesPersonalityAndMemoryWindow(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{ReplyMode: store.ReplyAlways, Personality: "gamer"})

	for i := 0; i < 10; i++ {
		f.memory.Append("u1", "note")
	}

	f.pipeline.Handle(context.Background(), guildMsg("help me win", false))
	if len(f.client.prompts) != 1 {
		t.Fatalf("AI called %d times, want 1", len(f.client.prompts))
	}
	prompt := f.client.prompts[0]

	if !strings.Contains(prompt, "gamer-friendly") {
		t.Error("prompt missing personality system text")
	}
	if !strings.Contains(prompt, "help me win") {
		t.Error("prompt missing user message")
	}
	if n := strings.Count(prompt, "note"); n != memoryWindow {
		t.Errorf("prompt carries %d memory notes, want %d", n, memoryWindow)
	}
}

func TestHandleAskBypassesGates(t *testing.T) {
	f := newFixture(t)
	// Mention mode plus question gate would ignore this as an ordinary message.
	f.configs.Set("g1", store.ServerConfig{
		ReplyMode:     store.ReplyMention,
		OnlyQuestions: true,
		Personality:   "standard",
	})

	got := f.pipeline.HandleAsk(context.Background(), "g1", "u1", "a plain statement")
	if got.Kind != ActionAIReply || got.Text != "ai says hi" {
		t.Fatalf("ask should always call the AI: %+v", got)
	}
	if len(f.memory.Get("u1").Notes) != 1 {
		t.Error("ask should append to memory")
	}
}

func TestRateLimitedAIPath(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, time.Minute, func() time.Time { return now })
	f.pipeline = NewPipeline(f.configs, f.memory, f.patterns, f.counters, f.client, nil, Options{
		Limiter: limiter,
		Now:     func() time.Time { return now },
	})

	if got := f.pipeline.HandleAsk(context.Background(), "g1", "u1", "one"); got.Kind != ActionAIReply {
		t.Fatalf("first ask: %+v", got)
	}
	got := f.pipeline.HandleAsk(context.Background(), "g1", "u1", "two")
	if got.Kind != ActionRateLimited || got.Text != RateLimitReply {
		t.Errorf("second ask should be rate limited: %+v", got)
	}
}

func TestEmptyMessageNeverMatchesPatterns(t *testing.T) {
	f := newFixture(t)
	f.configs.Set("g1", store.ServerConfig{ReplyMode: store.ReplyAlways, Personality: "standard"})
	f.patterns.Add("g1", "hi", "resp")

	got := f.pipeline.Handle(context.Background(), guildMsg("", false))
	if got.Kind == ActionPatternReply {
		t.Errorf("empty message matched a pattern: %+v", got)
	}
}
