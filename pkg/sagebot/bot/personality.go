// Package bot implements the reply decision pipeline: given an incoming
// message and the persisted stores, decide whether to ignore it, answer
// from a taught pattern, or ask the AI gateway.
package bot

import "strings"

// personalities maps a mode name to its system prompt.
var personalities = map[string]string{
	"standard": "You are a helpful and concise assistant.",
	"formal":   "You are a helpful, concise, formal assistant. Use polite professional language.",
	"funny":    "You are a witty, friendly assistant with playful jokes when appropriate.",
	"gamer":    "You are a gamer-friendly assistant: casual, upbeat, and focused on gaming tips.",
}

// SystemPrompt resolves a personality mode to its system prompt string.
// Lookup is case-insensitive; unknown or empty modes fall back to standard.
func SystemPrompt(mode string) string {
	if p, ok := personalities[strings.ToLower(mode)]; ok {
		return p
	}
	return personalities["standard"]
}

// KnownPersonality reports whether a mode name is in the fixed table.
func KnownPersonality(mode string) bool {
	_, ok := personalities[strings.ToLower(mode)]
	return ok
}

// PersonalityModes lists the valid mode names for command help text.
func PersonalityModes() []string {
	return []string{"standard", "formal", "funny", "gamer"}
}
