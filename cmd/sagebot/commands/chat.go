package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/sagebot/pkg/sagebot/ai"
	"github.com/jholhewres/sagebot/pkg/sagebot/assistant"
	"github.com/jholhewres/sagebot/pkg/sagebot/bot"
	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// chatUserID keys local REPL memory separately from any Discord user.
const chatUserID = "local"

// newChatCmd creates the `sagebot chat` command: a local conversation with
// the same pipeline the Discord channel uses, without connecting to Discord.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant locally",
		Long: `Sends a message through the reply pipeline without Discord. With no
arguments it starts an interactive session.

Examples:
  sagebot chat "What time is it in UTC?"
  sagebot chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("model", "m", "", "override the configured model")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := assistant.NewLogger(cfg.Logging, verbose)

	assistant.ResolveSecrets(cfg, logger)
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("no AI API key configured. Run: sagebot config set-key, or set SAGEBOT_API_KEY")
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.AI.Model = model
	}

	db, err := store.OpenDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pipeline := bot.NewPipeline(
		store.NewServerConfigStore(db),
		store.NewMemoryStore(db),
		store.NewPatternStore(db),
		store.NewCounterStore(db),
		ai.NewClient(cfg.AI, logger),
		logger,
		bot.Options{},
	)

	ctx := context.Background()

	if len(args) > 0 {
		action := pipeline.HandleAsk(ctx, "", chatUserID, args[0])
		fmt.Println(action.Text)
		return nil
	}

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Interactive chat. Type /quit to exit.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		action := pipeline.HandleAsk(ctx, "", chatUserID, line)
		fmt.Println("bot> " + action.Text)
	}
}
