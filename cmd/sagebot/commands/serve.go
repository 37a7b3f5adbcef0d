package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/sagebot/pkg/sagebot/ai"
	"github.com/jholhewres/sagebot/pkg/sagebot/assistant"
	"github.com/jholhewres/sagebot/pkg/sagebot/bot"
	"github.com/jholhewres/sagebot/pkg/sagebot/channels/discord"
	"github.com/jholhewres/sagebot/pkg/sagebot/dashboard"
	"github.com/jholhewres/sagebot/pkg/sagebot/scheduler"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// newServeCmd creates the `sagebot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Discord daemon",
		Long: `Start Sagebot as a daemon: connect to the Discord gateway, register
slash commands, start the announcement scheduler and, when enabled, the
admin dashboard.

Examples:
  sagebot serve
  sagebot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := assistant.NewLogger(cfg.Logging, verbose)
	slog.SetDefault(logger)

	assistant.ResolveSecrets(cfg, logger)

	// Both secrets are required to do anything useful, so a missing one is
	// fatal here rather than a failure an hour into the run.
	if cfg.Discord.Token == "" {
		return fmt.Errorf("no Discord token configured. Run: sagebot setup, or set SAGEBOT_DISCORD_TOKEN")
	}
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("no AI API key configured. Run: sagebot config set-key, or set SAGEBOT_API_KEY")
	}

	db, err := store.OpenDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	configs := store.NewServerConfigStore(db)
	memory := store.NewMemoryStore(db)
	patterns := store.NewPatternStore(db)
	counters := store.NewCounterStore(db)
	schedules := store.NewScheduleStore(db)

	aiClient := ai.NewClient(cfg.AI, logger)

	var limiter *bot.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = bot.NewRateLimiter(cfg.RateLimit.MaxPerMinute, assistant.RateWindow, nil)
	}

	pipeline := bot.NewPipeline(configs, memory, patterns, counters, aiClient, logger, bot.Options{
		AITimeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		Limiter:   limiter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The channel and the dispatcher reference each other: the dispatcher
	// sends through the channel, the channel registers schedules on the
	// dispatcher. The channel is created first and gets the dispatcher
	// injected right after.
	channel := discord.New(cfg.Discord, discord.Deps{
		Pipeline:  pipeline,
		Configs:   configs,
		Memory:    memory,
		Patterns:  patterns,
		Counters:  counters,
		Schedules: schedules,
		Images:    aiClient,
	}, logger)

	dispatcher := scheduler.New(schedules, channel, logger)
	channel.SetDispatcher(dispatcher)

	if err := channel.Connect(ctx); err != nil {
		return err
	}
	defer channel.Disconnect()

	if cfg.Scheduler.Enabled {
		if err := dispatcher.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer dispatcher.Stop()
	}

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.New(cfg.Dashboard, counters, patterns, logger)
		if err := dash.Start(ctx); err != nil {
			logger.Error("failed to start dashboard", "error", err)
		}
	}

	logger.Info("Sagebot running. Press Ctrl+C to stop.",
		"database", cfg.Database,
		"model", cfg.AI.Model,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	if dash != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = dash.Stop(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("shutdown complete")
	return nil
}

// resolveConfig loads the config from the --config flag or discovery.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	return nil, fmt.Errorf("no configuration file found. Run: sagebot setup")
}
