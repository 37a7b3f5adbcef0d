package assistant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SAGEBOT_TEST_VAR", "hello")

	cases := []struct {
		in, want string
	}{
		{"${SAGEBOT_TEST_VAR}", "hello"},
		{"prefix-${SAGEBOT_TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${SAGEBOT_TEST_UNSET:-fallback}", "fallback"},
		{"${SAGEBOT_TEST_UNSET}", "${SAGEBOT_TEST_UNSET}"},
		{"no variables here", "no variables here"},
	}
	for _, tc := range cases {
		if got := expandEnvVars(tc.in); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExpandEnvVarsRequired(t *testing.T) {
	_, err := expandEnvVarsWithValidation("token: ${SAGEBOT_TEST_MISSING:?token is required}")
	if err == nil {
		t.Fatal("expected error for missing required variable")
	}
	if !strings.Contains(err.Error(), "SAGEBOT_TEST_MISSING") {
		t.Errorf("expected variable name in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "token is required") {
		t.Errorf("expected custom message in error, got %v", err)
	}
}

func TestParseConfigOverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("ai:\n  model: custom-model\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AI.Model != "custom-model" {
		t.Errorf("expected overridden model, got %q", cfg.AI.Model)
	}
	if cfg.RateLimit.MaxPerMinute != 20 {
		t.Errorf("expected default rate limit to survive, got %d", cfg.RateLimit.MaxPerMinute)
	}
	if cfg.Database != "sagebot.db" {
		t.Errorf("expected default database path, got %q", cfg.Database)
	}
}

func TestParseConfigRejectsBadYAML(t *testing.T) {
	if _, err := ParseConfig([]byte("discord: [not a map")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("SAGEBOT_TEST_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "discord:\n  token: ${SAGEBOT_TEST_TOKEN}\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "tok-123" {
		t.Errorf("expected expanded token, got %q", cfg.Discord.Token)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("SAGEBOT_API_KEY", "sk-test")
	t.Setenv("SAGEBOT_DASHBOARD_SECRET", "dash-secret")

	cfg := DefaultConfig()
	resolveSecretsFromEnv(cfg)

	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("expected API key from env, got %q", cfg.AI.APIKey)
	}
	if cfg.Dashboard.Secret != "dash-secret" {
		t.Errorf("expected dashboard secret from env, got %q", cfg.Dashboard.Secret)
	}
}

func TestResolveSecretsKeepsExplicitValues(t *testing.T) {
	t.Setenv("SAGEBOT_API_KEY", "sk-env")

	cfg := DefaultConfig()
	cfg.AI.APIKey = "sk-explicit"
	resolveSecretsFromEnv(cfg)

	if cfg.AI.APIKey != "sk-explicit" {
		t.Errorf("expected explicit key to win, got %q", cfg.AI.APIKey)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.AI.Model = "round-trip-model"
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %04o", perm)
	}

	loaded, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.AI.Model != "round-trip-model" {
		t.Errorf("expected saved model back, got %q", loaded.AI.Model)
	}
}
