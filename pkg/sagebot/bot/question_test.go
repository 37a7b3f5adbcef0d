package bot

import "testing"

func TestLooksLikeQuestion(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Hello?", true},
		{"  trailing space? ", true},
		{"tell me", false},
		{"Can you help", true},
		{"what time is it", true},
		{"WHY though", true},
		{"whatever you say", false}, // prefix must be a whole word
		{"", false},
		{"   ", false},
		{"does\tthis count", true},
		{"statement.", false},
		{"What's the time", true},
		{"Who's on call today", true},
		{"Can't we do it now", true},
		{"what.", true}, // bare interrogative with punctuation
	}

	for _, c := range cases {
		if got := LooksLikeQuestion(c.text); got != c.want {
			t.Errorf("LooksLikeQuestion(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
