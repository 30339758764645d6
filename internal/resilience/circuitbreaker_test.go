package resilience

import (
	"sync"
	"testing"
	"time"
)

// transitions records OnStateChange callbacks, which may arrive from the
// cooldown timer goroutine.
type transitions struct {
	mu    sync.Mutex
	pairs []string
}

func (tr *transitions) record(from, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.pairs = append(tr.pairs, from.String()+"->"+to.String())
}

func (tr *transitions) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, len(tr.pairs))
	copy(out, tr.pairs)
	return out
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.threshold != 3 {
		t.Errorf("threshold = %d, want 3", cb.threshold)
	}
	if cb.window != 60*time.Second {
		t.Errorf("window = %v, want 60s", cb.window)
	}
	if cb.baseCooldown != 5*time.Second {
		t.Errorf("baseCooldown = %v, want 5s", cb.baseCooldown)
	}
	if cb.maxCooldown != 120*time.Second {
		t.Errorf("maxCooldown = %v, want 120s", cb.maxCooldown)
	}
	if cb.multiplier != 2 {
		t.Errorf("multiplier = %v, want 2", cb.multiplier)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if !cb.CanRequest() {
		t.Error("CanRequest() = false in closed state, want true")
	}
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	tr := &transitions{}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Cooldown:         time.Hour, // stays open for the whole test
		OnStateChange:    tr.record,
	})
	defer cb.Close()

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after 2 failures, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after 3 failures, want open", cb.State())
	}
	if cb.CanRequest() {
		t.Error("CanRequest() = true in open state, want false")
	}

	got := tr.get()
	if len(got) != 1 || got[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", got)
	}
}

func TestCircuitBreaker_WindowExpiresFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Window:           30 * time.Millisecond,
		Cooldown:         time.Hour,
	})
	defer cb.Close()

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(40 * time.Millisecond)

	// The two old failures have left the window.
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (stale failures must not count)", cb.State())
	}
}

func TestCircuitBreaker_SuccessClearsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Cooldown:         time.Hour,
	})
	defer cb.Close()

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should clear the window)", cb.State())
	}
}

func TestCircuitBreaker_CooldownToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         20 * time.Millisecond,
	})
	defer cb.Close()

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	// Jitter keeps the cooldown within ±15% of 20ms.
	time.Sleep(40 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after cooldown", cb.State())
	}

	if !cb.CanRequest() {
		t.Fatal("first CanRequest() in half_open = false, want true (the probe)")
	}
	if cb.CanRequest() {
		t.Fatal("second CanRequest() in half_open = true, want false")
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	tr := &transitions{}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         20 * time.Millisecond,
		OnStateChange:    tr.record,
	})
	defer cb.Close()

	cb.RecordFailure()
	time.Sleep(40 * time.Millisecond)

	if !cb.CanRequest() {
		t.Fatal("probe not allowed")
	}
	cb.RecordSuccess()

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", cb.State())
	}
	if cb.Cooldown() != 20*time.Millisecond {
		t.Errorf("cooldown = %v, want base 20ms after recovery", cb.Cooldown())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	got := tr.get()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestCircuitBreaker_FailedProbeBacksOff(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:              "test",
		FailureThreshold:  1,
		Cooldown:          20 * time.Millisecond,
		MaxCooldown:       50 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	defer cb.Close()

	cb.RecordFailure()
	time.Sleep(40 * time.Millisecond)
	if !cb.CanRequest() {
		t.Fatal("probe not allowed")
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	if cb.Cooldown() != 40*time.Millisecond {
		t.Fatalf("cooldown = %v, want doubled 40ms", cb.Cooldown())
	}

	// Second failed probe hits the cap.
	time.Sleep(60 * time.Millisecond)
	if !cb.CanRequest() {
		t.Fatal("second probe not allowed")
	}
	cb.RecordFailure()
	if cb.Cooldown() != 50*time.Millisecond {
		t.Fatalf("cooldown = %v, want capped 50ms", cb.Cooldown())
	}
}

func TestCircuitBreaker_CloseStopsTimer(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         15 * time.Millisecond,
	})

	cb.RecordFailure()
	cb.Close()
	time.Sleep(40 * time.Millisecond)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open (cooldown timer was released)", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
