// Package scheduler implements the announcement dispatcher for Sagebot.
// Uses robfig/cron for cron expression parsing and execution; entries are
// loaded once from the schedule store at process start and fire in UTC.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// Sender delivers dispatcher output through the chat platform.
type Sender interface {
	// Announce posts text to a channel within a server. Implementations
	// return an error on send failure and a nil error when the server or
	// channel is simply no longer known (the entry is skipped silently).
	Announce(guildID, channelID, text string) error

	// DirectMessage sends text to a user's DM, used by one-shot reminders.
	DirectMessage(userID, text string) error
}

// ValidateCron checks a standard 5-field cron expression. Admin commands
// and the dashboard call this before storing an entry, so the store never
// holds a rejected expression.
func ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// Dispatcher registers stored schedules with a UTC cron runner and emits
// each entry's text when it fires. Entries fire independently: one entry's
// failure never blocks another, and a send failure does not unregister the
// timer.
type Dispatcher struct {
	schedules *store.ScheduleStore
	sender    Sender
	logger    *slog.Logger

	cron     *cron.Cron
	entryIDs map[int64]cron.EntryID

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher over the schedule store and sender.
func New(schedules *store.ScheduleStore, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		schedules: schedules,
		sender:    sender,
		logger:    logger.With("component", "scheduler"),
		entryIDs:  make(map[int64]cron.EntryID),
	}
	// Reminders must work even when the cron runner is disabled, so the
	// dispatcher carries a usable context before Start.
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start loads all stored schedules and registers the syntactically valid
// ones. An invalid cron expression skips that one entry with a warning; it
// does not abort loading the rest.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.cron = cron.New(cron.WithLocation(time.UTC))

	entries, err := d.schedules.All()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	loaded := 0
	for _, sch := range entries {
		if err := d.register(sch); err != nil {
			d.logger.Warn("skipping schedule with invalid cron expression",
				"id", sch.ID, "cron", sch.CronExpr, "error", err)
			continue
		}
		loaded++
	}

	d.cron.Start()
	d.logger.Info("scheduler started", "loaded", loaded, "skipped", len(entries)-loaded)
	return nil
}

// Register adds one schedule to the live cron runner. Used when an admin
// creates a schedule while the process is running.
func (d *Dispatcher) Register(sch store.Schedule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron == nil {
		return fmt.Errorf("scheduler not started")
	}
	return d.register(sch)
}

// Unregister removes a schedule's live timer, if one exists.
func (d *Dispatcher) Unregister(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entryID, ok := d.entryIDs[id]; ok {
		d.cron.Remove(entryID)
		delete(d.entryIDs, id)
	}
}

// Stop shuts the cron runner down, waiting briefly for in-flight firings.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	c := d.cron
	cancel := d.cancel
	d.mu.Unlock()

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(10 * time.Second):
			d.logger.Warn("scheduler stop timed out")
		}
	}
	if cancel != nil {
		cancel()
	}
	d.logger.Info("scheduler stopped")
}

// RemindAfter fires a one-shot DM reminder after the delay. The timer is
// dropped when the process shuts down first; reminders are best-effort and
// not persisted.
func (d *Dispatcher) RemindAfter(delay time.Duration, userID, note string) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	go func() {
		select {
		case <-time.After(delay):
			if err := d.sender.DirectMessage(userID, "Reminder: "+note); err != nil {
				d.logger.Error("reminder delivery failed", "user", userID, "error", err)
			}
		case <-ctx.Done():
		}
	}()
}

// register adds the cron entry (caller must hold mu).
func (d *Dispatcher) register(sch store.Schedule) error {
	entryID, err := d.cron.AddFunc(sch.CronExpr, func() {
		d.dispatch(sch)
	})
	if err != nil {
		return err
	}
	d.entryIDs[sch.ID] = entryID
	return nil
}

// dispatch emits one schedule's text. Failures are logged and isolated;
// the next firing is attempted independently with no retry or backoff.
func (d *Dispatcher) dispatch(sch store.Schedule) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("schedule dispatch panicked", "id", sch.ID, "panic", r)
		}
	}()

	if err := d.sender.Announce(sch.GuildID, sch.ChannelID, sch.Text); err != nil {
		d.logger.Error("announcement send failed",
			"id", sch.ID, "guild", sch.GuildID, "channel", sch.ChannelID, "error", err)
		return
	}
	d.logger.Debug("announcement sent", "id", sch.ID, "channel", sch.ChannelID)
}
