// Package commands implements the Sagebot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sagebot",
		Short: "Sagebot - AI assistant for Discord servers",
		Long: `Sagebot is an AI assistant daemon for Discord. It answers questions,
learns trigger/response patterns, remembers notes per user, and posts
scheduled announcements.

Examples:
  sagebot serve
  sagebot setup
  sagebot chat "What time is it in UTC?"
  sagebot config set-key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
		newChatCmd(),
		newConfigCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
