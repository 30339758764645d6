package resilience

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if rl.Allow() {
		t.Fatal("Allow() #4 = true, want false (window full)")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, 30*time.Millisecond)

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("first two requests should be admitted")
	}
	if rl.Allow() {
		t.Fatal("third request admitted inside full window")
	}

	time.Sleep(40 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("request refused after the window slid past old admissions")
	}
}

func TestRateLimiter_PartialExpiry(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)

	if !rl.Allow() {
		t.Fatal("first request refused")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("second request refused")
	}
	if rl.Allow() {
		t.Fatal("third request admitted inside full window")
	}

	// Only the first admission has expired; one slot frees up.
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("request refused after first admission expired")
	}
	if rl.Allow() {
		t.Fatal("window should be full again")
	}
}
