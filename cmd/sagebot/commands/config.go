package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/sagebot/pkg/sagebot/assistant"
)

// newConfigCmd creates the `sagebot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
		Long: `Manage Sagebot configuration. Secrets are stored in the OS keyring,
never in config.yaml.

Examples:
  sagebot config show
  sagebot config set-key
  sagebot config set-token`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigSetTokenCmd(),
		newConfigDeleteKeyCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			masked := *cfg
			masked.Discord.Token = mask(cfg.Discord.Token)
			masked.AI.APIKey = mask(cfg.AI.APIKey)
			masked.Dashboard.Secret = mask(cfg.Dashboard.Secret)

			out, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			return storeKeyringSecret(assistant.KeyringAPIKey, "API key: ")
		},
	}
}

func newConfigSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token",
		Short: "Store the Discord bot token in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			return storeKeyringSecret(assistant.KeyringDiscordToken, "Discord token: ")
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the LLM API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := assistant.DeleteKeyring(assistant.KeyringAPIKey); err != nil {
				return fmt.Errorf("deleting key: %w", err)
			}
			fmt.Println("API key removed from keyring.")
			return nil
		},
	}
}

// storeKeyringSecret prompts for a secret with hidden input and saves it.
func storeKeyringSecret(name, prompt string) error {
	if !assistant.KeyringAvailable() {
		return fmt.Errorf("no OS keyring available on this system. Use environment variables instead")
	}

	value, err := assistant.ReadPassword(prompt)
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("nothing entered, keyring unchanged")
	}

	if err := assistant.StoreKeyring(name, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	fmt.Println("Stored in OS keyring.")
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
