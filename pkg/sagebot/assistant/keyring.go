// Package assistant – keyring.go stores secrets in the operating system's
// native keyring (Linux: Secret Service, macOS: Keychain, Windows:
// Credential Manager).
//
// Resolution order for each secret: OS keyring, then environment variable
// (including .env files loaded by godotenv), then the config.yaml value.
package assistant

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "sagebot"

	// KeyringAPIKey names the LLM API key entry.
	KeyringAPIKey = "api_key"

	// KeyringDiscordToken names the Discord bot token entry.
	KeyringDiscordToken = "discord_token"

	// KeyringDashboardSecret names the dashboard secret entry.
	KeyringDashboardSecret = "dashboard_secret"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, empty when absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable probes the OS keyring with a write+delete cycle.
func KeyringAvailable() bool {
	testKey := "__sagebot_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecrets overrides config secrets with keyring values when present.
// Environment and config values were already merged by the loader, so the
// keyring only wins when it actually holds an entry.
func ResolveSecrets(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(KeyringAPIKey); val != "" {
		cfg.AI.APIKey = val
		logger.Debug("API key loaded from OS keyring")
	}
	if val := GetKeyring(KeyringDiscordToken); val != "" {
		cfg.Discord.Token = val
		logger.Debug("Discord token loaded from OS keyring")
	}
	if val := GetKeyring(KeyringDashboardSecret); val != "" {
		cfg.Dashboard.Secret = val
		logger.Debug("dashboard secret loaded from OS keyring")
	}
}

// ReadPassword prompts for a secret without echoing it to the terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}
