package bot

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	r := NewRateLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !r.Allow("u1") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if r.Allow("u1") {
		t.Error("4th call inside window should be denied")
	}

	// Other keys are independent.
	if !r.Allow("u2") {
		t.Error("different user should not be limited")
	}

	// Advancing past the window frees the budget.
	now = now.Add(61 * time.Second)
	if !r.Allow("u1") {
		t.Error("call after window should be allowed")
	}
}

func TestRateLimiterDropsIdleKeys(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	r := NewRateLimiter(3, time.Minute, clock)

	for i := 0; i < 50; i++ {
		r.Allow("drive-by-" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
	}

	// A window later the one-off keys have aged out and the next call
	// sweeps them instead of keeping an entry per user forever.
	now = now.Add(2 * time.Minute)
	r.Allow("regular")

	r.mu.Lock()
	size := len(r.hits)
	r.mu.Unlock()
	if size != 1 {
		t.Errorf("hits holds %d keys after sweep, want 1", size)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(0, time.Minute, nil)
	for i := 0; i < 100; i++ {
		if !r.Allow("u1") {
			t.Fatal("zero max should disable limiting")
		}
	}
}
