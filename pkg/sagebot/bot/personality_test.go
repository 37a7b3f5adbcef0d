package bot

import (
	"strings"
	"testing"
)

func TestSystemPromptLookup(t *testing.T) {
	if got := SystemPrompt("formal"); !strings.Contains(got, "formal") {
		t.Errorf("formal prompt = %q", got)
	}
	if SystemPrompt("FUNNY") != SystemPrompt("funny") {
		t.Error("lookup should be case-insensitive")
	}
	if SystemPrompt("nonsense") != SystemPrompt("standard") {
		t.Error("unknown mode should fall back to standard")
	}
	if SystemPrompt("") != SystemPrompt("standard") {
		t.Error("empty mode should fall back to standard")
	}
}

func TestKnownPersonality(t *testing.T) {
	for _, mode := range PersonalityModes() {
		if !KnownPersonality(mode) {
			t.Errorf("mode %q should be known", mode)
		}
	}
	if KnownPersonality("pirate") {
		t.Error("pirate should not be a known mode")
	}
}
