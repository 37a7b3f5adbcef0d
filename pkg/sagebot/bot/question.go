package bot

import (
	"strings"
	"unicode"
)

// interrogatives are the fixed prefix words that mark a message as a
// question even without a trailing question mark.
var interrogatives = []string{
	"who", "what", "when", "where", "why", "how",
	"is", "are", "do", "does", "did",
	"can", "could", "should", "would",
}

// LooksLikeQuestion reports whether the trimmed text ends in '?' or starts
// with one of the fixed interrogative words, case-insensitively. Empty text
// is never a question.
func LooksLikeQuestion(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.HasSuffix(t, "?") {
		return true
	}

	// The leading word ends at the first non-letter rune, so contractions
	// like "what's" or "can't" still match their interrogative.
	first := strings.ToLower(t)
	if idx := strings.IndexFunc(first, func(r rune) bool {
		return !unicode.IsLetter(r)
	}); idx >= 0 {
		first = first[:idx]
	}
	for _, w := range interrogatives {
		if first == w {
			return true
		}
	}
	return false
}
