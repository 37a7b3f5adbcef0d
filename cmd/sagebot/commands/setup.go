package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/sagebot/pkg/sagebot/assistant"
)

// newSetupCmd creates the `sagebot setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the Discord token, LLM API key, model, and dashboard settings.
Secrets go to the OS keyring when available; config.yaml only carries
environment references.

Examples:
  sagebot setup`,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := assistant.DefaultConfig()

	var (
		discordToken    string
		apiKey          string
		model           = cfg.AI.Model
		baseURL         string
		logFormat       = cfg.Logging.Format
		dashboardOn     bool
		dashboardSecret string
		confirmSave     = true
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				Description("From the Discord developer portal, Bot tab.").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
			huh.NewInput().
				Title("LLM API key").
				Description("For an OpenAI-compatible endpoint. Leave empty to set later.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Value(&model),
			huh.NewInput().
				Title("API base URL").
				Description("Leave empty for the OpenAI default.").
				Value(&baseURL),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log format").
				Options(
					huh.NewOption("text", "text"),
					huh.NewOption("json", "json"),
				).
				Value(&logFormat),
			huh.NewConfirm().
				Title("Enable the admin dashboard?").
				Value(&dashboardOn),
			huh.NewInput().
				Title("Dashboard secret").
				Description("Required on every dashboard request. Ignored if the dashboard is off.").
				EchoMode(huh.EchoModePassword).
				Value(&dashboardSecret),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save to config.yaml?").
				Value(&confirmSave),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup aborted: %w", err)
	}
	if !confirmSave {
		fmt.Println("Setup cancelled.")
		return nil
	}

	cfg.AI.Model = model
	cfg.AI.BaseURL = baseURL
	cfg.Logging.Format = logFormat
	cfg.Dashboard.Enabled = dashboardOn

	// Secrets go to the keyring when possible; the YAML file only ever
	// holds environment references.
	keyringOK := assistant.KeyringAvailable()
	storeSecret(keyringOK, assistant.KeyringDiscordToken, discordToken)
	storeSecret(keyringOK, assistant.KeyringAPIKey, apiKey)
	storeSecret(keyringOK, assistant.KeyringDashboardSecret, dashboardSecret)

	cfg.Discord.Token = "${SAGEBOT_DISCORD_TOKEN}"
	cfg.AI.APIKey = "${SAGEBOT_API_KEY}"
	if dashboardOn {
		cfg.Dashboard.Secret = "${SAGEBOT_DASHBOARD_SECRET}"
	}

	target := "config.yaml"
	if _, err := os.Stat(target); err == nil {
		overwrite := false
		prompt := huh.NewConfirm().
			Title(target + " already exists. Overwrite?").
			Value(&overwrite)
		if err := prompt.Run(); err != nil || !overwrite {
			fmt.Println("Setup cancelled. Existing file kept.")
			return nil
		}
	}

	if err := assistant.SaveConfigToFile(cfg, target); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println("config.yaml created.")
	if keyringOK {
		fmt.Println("Secrets stored in the OS keyring.")
	} else {
		fmt.Println("No OS keyring available. Export SAGEBOT_DISCORD_TOKEN and")
		fmt.Println("SAGEBOT_API_KEY (for example in a .env file) before serving.")
	}
	fmt.Println()
	fmt.Println("Next: sagebot serve")
	return nil
}

func storeSecret(keyringOK bool, name, value string) {
	if !keyringOK || value == "" {
		return
	}
	if err := assistant.StoreKeyring(name, value); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not store %s in keyring: %v\n", name, err)
	}
}
